package response

import "github.com/gin-gonic/gin"

// Envelope shape: {result: bool, data: ..., error: {message, code}}.
// Every handler answers through these helpers so the shape never drifts.

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"result": true,
		"data":   data,
	})
}

func Error(c *gin.Context, statusCode int, code int, message string) {
	c.JSON(statusCode, gin.H{
		"result": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func AbortError(c *gin.Context, statusCode int, code int, message string) {
	c.AbortWithStatusJSON(statusCode, gin.H{
		"result": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
