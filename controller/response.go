package controller

import (
	"net/http"

	"go-khora/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor 错误分类对应的 http 状态码
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindInsufficientResource, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConsistency:
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

func ok(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"status_code": http.StatusOK,
		"msg":         msg,
		"data":        data,
	})
}

// fail 部分成功（Consistency）也带上 data，调用方根据 warning 决定是否重试
func (gc *GameController) fail(c *gin.Context, err error, data interface{}) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if kind == apperr.KindConsistency {
		gc.log.Warn("部分操作失败", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{
			"status_code": status,
			"msg":         "partially applied",
			"warning":     apperr.Message(err),
			"data":        data,
		})
		return
	}
	if status == http.StatusInternalServerError {
		gc.log.Error("请求处理失败", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"status_code": status, "msg": "internal server error"})
		return
	}
	c.JSON(status, gin.H{
		"status_code": status,
		"msg":         apperr.Message(err),
		"kind":        kind,
	})
}

// badRequest 请求体绑定失败
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"status_code": http.StatusBadRequest,
		"msg":         "Missing or invalid fields",
		"error":       err.Error(),
	})
}
