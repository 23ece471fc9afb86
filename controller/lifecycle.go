package controller

import (
	"go-khora/dto"
	"go-khora/middleware"

	"github.com/gin-gonic/gin"
)

func (gc *GameController) Join(c *gin.Context) {
	p, err := gc.svc.Join(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		gc.fail(c, err, nil)
		return
	}
	ok(c, "joined", p)
}

func (gc *GameController) Leave(c *gin.Context) {
	p, err := gc.svc.Leave(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		gc.fail(c, err, nil)
		return
	}
	ok(c, "left", p)
}

func (gc *GameController) Presence(c *gin.Context) {
	p, err := gc.svc.ReportPresence(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		gc.fail(c, err, nil)
		return
	}
	ok(c, "ok", p)
}

func (gc *GameController) Kick(c *gin.Context) {
	var req dto.UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := gc.svc.Kick(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.UserID)
	if err != nil {
		gc.fail(c, err, nil)
		return
	}
	ok(c, "kicked", p)
}

func (gc *GameController) Promote(c *gin.Context) {
	var req dto.UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	report, err := gc.svc.Promote(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.UserID)
	if err != nil {
		gc.fail(c, err, report)
		return
	}
	ok(c, "host transferred", report)
}
