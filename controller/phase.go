package controller

import (
	"context"

	"go-khora/dto"
	"go-khora/entities"
	"go-khora/middleware"

	"github.com/gin-gonic/gin"
)

// statusHandler 房主切换游戏状态的几个接口共用
func (gc *GameController) statusHandler(msg string, op func(ctx context.Context, gameID, callerID string) (*entities.Game, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, err := op(c.Request.Context(), c.Param("id"), middleware.UserID(c))
		if err != nil {
			gc.fail(c, err, nil)
			return
		}
		ok(c, msg, g)
	}
}

func (gc *GameController) StartSetup() gin.HandlerFunc {
	return gc.statusHandler("setup started", gc.svc.StartSetup)
}

func (gc *GameController) StartGame() gin.HandlerFunc {
	return gc.statusHandler("game started", gc.svc.StartGame)
}

func (gc *GameController) FinishGame() gin.HandlerFunc {
	return gc.statusHandler("game finished", gc.svc.FinishGame)
}

func (gc *GameController) AssignCities(c *gin.Context) {
	results, err := gc.svc.AssignStartingCities(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		gc.fail(c, err, results)
		return
	}
	ok(c, "cities assigned", results)
}

func (gc *GameController) ChangePhase(c *gin.Context) {
	var req dto.PhaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	g, err := gc.svc.ChangePhase(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.Phase)
	if err != nil {
		gc.fail(c, err, nil)
		return
	}
	ok(c, "phase changed", g)
}

func (gc *GameController) TaxPhase(c *gin.Context) {
	entries, err := gc.svc.RunTaxPhase(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	resp := dto.TaxResponse{Entries: entries}
	if err != nil {
		gc.fail(c, err, resp)
		return
	}
	ok(c, "tax collected", resp)
}
