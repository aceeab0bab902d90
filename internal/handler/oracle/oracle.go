package oracle

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/settlement-backend/internal/apperror"
	"github.com/dwarvesf/settlement-backend/internal/monitoring"
	"github.com/dwarvesf/settlement-backend/internal/oracle"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
	"github.com/dwarvesf/settlement-backend/internal/view"
)

type handler struct {
	oracle          oracle.IOracle
	logger          *logger.Logger
	metricsRecorder *monitoring.BusinessMetricsRecorder
}

func New(oracle oracle.IOracle, logger *logger.Logger, metricsRecorder *monitoring.BusinessMetricsRecorder) IHandler {
	return &handler{
		oracle:          oracle,
		logger:          logger,
		metricsRecorder: metricsRecorder,
	}
}

// GetPrice godoc
// @Summary Get spot price
// @Description Spot price of a pair from the price oracle. Prices are cached for a few seconds and never served past that.
// @id getPrice
// @Tags Oracle
// @Produce json
// @Param pair query string true "Price pair, e.g. SOLUSDT"
// @Success 200 {object} view.Response[PriceResponse]
// @Failure 400 {object} view.ErrorResponse
// @Failure 503 {object} view.ErrorResponse
// @Router /oracle/price [get]
func (h *handler) GetPrice(c *gin.Context) {
	pair := strings.ToUpper(strings.TrimSpace(c.Query("pair")))
	if pair == "" {
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, apperror.New(apperror.KindInvalidRequest, "pair is required"), nil, ""))
		return
	}

	before := h.oracle.GetCacheStatistics()
	start := time.Now()
	price, err := h.oracle.Quote(c.Request.Context(), pair)
	duration := time.Since(start).Seconds()

	if err != nil {
		kind := apperror.KindOf(err)
		h.logger.Error("[GetPrice][Quote]", map[string]string{
			"pair":  pair,
			"error": err.Error(),
		})
		h.metricsRecorder.RecordOracleOperation("price", "error", duration)
		c.JSON(kind.HTTPStatus(), view.CreateResponse[any](nil, err, nil, "can't get price"))
		return
	}

	h.metricsRecorder.RecordOracleOperation("price", "success", duration)
	if after := h.oracle.GetCacheStatistics(); after.Hits > before.Hits {
		h.metricsRecorder.RecordCacheOperation("oracle_price", "hit")
	} else {
		h.metricsRecorder.RecordCacheOperation("oracle_price", "miss")
	}

	c.JSON(http.StatusOK, view.CreateResponse[any](PriceResponse{
		Pair:  pair,
		Price: price.String(),
	}, nil, nil, ""))
}

// GetCacheStatistics godoc
// @Summary Price cache statistics
// @Description Hit, miss and failure counters of the price oracle cache
// @id getPriceCacheStatistics
// @Tags Oracle
// @Produce json
// @Success 200 {object} view.Response[oracle.CacheStatistics]
// @Router /oracle/cache [get]
func (h *handler) GetCacheStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, view.CreateResponse[any](h.oracle.GetCacheStatistics(), nil, nil, ""))
}
