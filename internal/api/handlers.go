package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mertipekreal/merf-stock-engine/internal/marketdata"
	"github.com/mertipekreal/merf-stock-engine/internal/smc"
)

// AnalyzeRequest asks for a technical read on one symbol.
type AnalyzeRequest struct {
	Symbol   string `json:"symbol" binding:"required"`
	Period   string `json:"period"`   // lookback window, e.g. "3mo"
	Interval string `json:"interval"` // reserved, daily bars only for now
}

// AnalyzeResponse mirrors the analysis contract: latest price, recent
// change, headline indicators, and a coarse recommendation.
type AnalyzeResponse struct {
	Symbol         string       `json:"symbol"`
	Price          float64      `json:"price"`
	ChangePercent  float64      `json:"change_percent"`
	RSI            float64      `json:"rsi"`
	Volatility     float64      `json:"volatility"`
	Trend          string       `json:"trend"`
	Bias           float64      `json:"bias"`
	Recommendation string       `json:"recommendation"`
	Analysis       smc.Analysis `json:"analysis"`
}

// PredictRequest asks for a model prediction on one symbol.
type PredictRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

func (s *Server) handleHealth(c *gin.Context) {
	status := gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if s.repo != nil {
		if err := s.repo.HealthCheck(c.Request.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	lookback := periodDuration(req.Period)
	now := time.Now().UTC()
	symbol := marketdata.NormalizeSymbol(req.Symbol)

	candles, err := s.candles.GetCandles(c.Request.Context(), symbol, now.Add(-lookback), now)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch market data", "detail": err.Error()})
		return
	}
	if len(candles) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no market data for symbol", "symbol": req.Symbol})
		return
	}

	analysis := s.detector.Analyze(symbol, candles)

	price := candles[len(candles)-1].Close
	changePercent := 0.0
	if len(candles) >= 2 && candles[len(candles)-2].Close != 0 {
		changePercent = (price - candles[len(candles)-2].Close) / candles[len(candles)-2].Close * 100
	}

	c.JSON(http.StatusOK, AnalyzeResponse{
		Symbol:         req.Symbol,
		Price:          price,
		ChangePercent:  changePercent,
		RSI:            analysis.RSI,
		Volatility:     analysis.Volatility,
		Trend:          string(analysis.Trend.Direction),
		Bias:           analysis.Bias.Score,
		Recommendation: recommendationFor(analysis),
		Analysis:       analysis,
	})
}

func (s *Server) handlePredict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	record, err := s.service.Predict(c.Request.Context(), marketdata.NormalizeSymbol(req.Symbol))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "prediction failed", "detail": err.Error()})
		return
	}

	s.hub.BroadcastJSON("prediction", record)
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleListPredictions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	predictions, err := s.service.ListPredictions(
		c.Request.Context(),
		c.Query("symbol"),
		c.Query("status"),
		limit,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"predictions": predictions, "count": len(predictions)})
}

func (s *Server) handleListModels(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	models, err := s.repo.ListModels(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models, "count": len(models)})
}

func (s *Server) handleTrain(c *gin.Context) {
	result, err := s.trainer.Train(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "training failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"model_id":  result.Model.ID,
		"synthetic": result.Synthetic,
		"samples":   result.Samples,
		"metrics":   result.Metrics,
	})
}

func (s *Server) handleLearningStats(c *gin.Context) {
	histories, err := s.repo.ListLayerHistories(c.Request.Context(), c.Query("regime"), c.Query("horizon"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	patterns, err := s.repo.ListPatterns(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	completed, err := s.repo.CountCompletedPredictions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"layer_histories":       histories,
		"patterns":              patterns,
		"completed_predictions": completed,
	})
}

func (s *Server) handleProcessLearning(c *gin.Context) {
	result, err := s.learner.ProcessOutcomes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleResetLearning(c *gin.Context) {
	result, err := s.learner.ResetAndRecompute(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// periodDuration maps a period label to a candle lookback window.
func periodDuration(period string) time.Duration {
	switch period {
	case "1mo":
		return 30 * 24 * time.Hour
	case "6mo":
		return 180 * 24 * time.Hour
	case "1y":
		return 365 * 24 * time.Hour
	case "3mo", "":
		return 90 * 24 * time.Hour
	default:
		return 90 * 24 * time.Hour
	}
}

// recommendationFor maps the aggregate bias to a coarse call. Thin data
// always reads as hold.
func recommendationFor(a smc.Analysis) string {
	if a.InsufficientData {
		return "hold"
	}
	switch a.Bias.Direction {
	case smc.Bullish:
		return "buy"
	case smc.Bearish:
		return "sell"
	default:
		return "hold"
	}
}
