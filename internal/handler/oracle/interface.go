package oracle

import "github.com/gin-gonic/gin"

type IHandler interface {
	GetPrice(c *gin.Context)
	GetCacheStatistics(c *gin.Context)
}

type PriceResponse struct {
	Pair  string `json:"pair"`
	Price string `json:"price"`
}
