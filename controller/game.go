package controller

import (
	"go-khora/dto"
	"go-khora/middleware"
	"go-khora/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultListLimit = 50

type GameController struct {
	svc *service.Service
	log *zap.Logger
}

func NewGameController(svc *service.Service, log *zap.Logger) *GameController {
	if log == nil {
		log = zap.NewNop()
	}
	return &GameController{svc: svc, log: log}
}

func (gc *GameController) CreateGame(c *gin.Context) {
	var req dto.CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	detail, err := gc.svc.CreateGame(c.Request.Context(), middleware.UserID(c), service.CreateGameInput{
		Name:        req.Name,
		Description: req.Description,
		MinPlayers:  req.MinPlayers,
		MaxPlayers:  req.MaxPlayers,
		TotalRound:  req.TotalRound,
		IsPublic:    req.IsPublic,
		GameOptions: req.GameOptions,
	})
	if err != nil {
		gc.fail(c, err, nil)
		return
	}
	ok(c, "game created", detail)
}

func (gc *GameController) ListGames(c *gin.Context) {
	var q dto.ListGamesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	if q.Limit == 0 {
		q.Limit = defaultListLimit
	}
	games, err := gc.svc.ListGames(c.Request.Context(), q.Limit)
	if err != nil {
		gc.fail(c, err, nil)
		return
	}
	ok(c, "ok", dto.GameList{Games: games})
}

func (gc *GameController) GetGame(c *gin.Context) {
	detail, err := gc.svc.GetGame(c.Request.Context(), c.Param("id"))
	if err != nil {
		gc.fail(c, err, nil)
		return
	}
	ok(c, "ok", detail)
}
