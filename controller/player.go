package controller

import (
	"go-khora/dto"
	"go-khora/middleware"

	"github.com/gin-gonic/gin"
)

// 玩家只能操作自己的玩家状态，id 从当前用户在这局游戏中的身份解析

func (gc *GameController) TrackUpgrade(c *gin.Context) {
	var req dto.TrackUpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	pc, err := gc.svc.ResolvePlayer(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		gc.fail(c, err, nil)
		return
	}
	ps, result, err := gc.svc.UpgradeTrack(c.Request.Context(), pc.PlayerState.ID, req.Track, req.UsePhilosophyToken)
	if err != nil {
		gc.fail(c, err, nil)
		return
	}
	ok(c, "track upgraded", dto.TrackUpgradeResponse{PlayerState: ps, Result: result})
}

func (gc *GameController) UsePhilosophyToken(c *gin.Context) {
	var req dto.PhilosophyTokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	pc, err := gc.svc.ResolvePlayer(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		gc.fail(c, err, nil)
		return
	}
	phase, err := pc.TokenPhase(req.Phase)
	if err != nil {
		gc.fail(c, err, nil)
		return
	}
	ps, err := gc.svc.UsePhilosophyToken(c.Request.Context(), pc.PlayerState.ID, phase)
	if err != nil {
		gc.fail(c, err, nil)
		return
	}
	ok(c, "philosophy token used", ps)
}

func (gc *GameController) PurchaseDevelopment(c *gin.Context) {
	pc, err := gc.svc.ResolvePlayer(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		gc.fail(c, err, nil)
		return
	}
	ps, result, err := gc.svc.PurchaseDevelopment(c.Request.Context(), pc.PlayerState.ID)
	if err != nil {
		gc.fail(c, err, nil)
		return
	}
	ok(c, "development purchased", dto.DevelopmentResponse{PlayerState: ps, Result: result})
}
