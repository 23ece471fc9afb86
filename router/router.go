package router

import (
	"net/http"

	"go-khora/controller"
	"go-khora/middleware"
	"go-khora/utils"

	"github.com/gin-gonic/gin"
)

func InitRouter(r *gin.Engine, gc *controller.GameController, issuer *utils.TokenIssuer) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status_code": http.StatusOK, "msg": "ok"})
	})

	// 游戏接口路由，全部需要登录
	api := r.Group("/games", middleware.AuthMiddleware(issuer))
	{
		api.POST("", gc.CreateGame)
		api.GET("", gc.ListGames)
		api.GET("/:id", gc.GetGame)

		api.POST("/:id/join", gc.Join)
		api.POST("/:id/leave", gc.Leave)
		api.POST("/:id/presence", gc.Presence)
		api.POST("/:id/kick", gc.Kick)
		api.POST("/:id/promote", gc.Promote)

		api.POST("/:id/start-setup", gc.StartSetup())
		api.POST("/:id/assign-cities", gc.AssignCities)
		api.POST("/:id/start-game", gc.StartGame())
		api.POST("/:id/finish", gc.FinishGame())
		api.POST("/:id/phase", gc.ChangePhase)
		api.POST("/:id/tax-phase", gc.TaxPhase)

		api.POST("/:id/track-upgrade", gc.TrackUpgrade)
		api.POST("/:id/philosophy-token/use", gc.UsePhilosophyToken)
		api.POST("/:id/developments/purchase", gc.PurchaseDevelopment)
	}
}
