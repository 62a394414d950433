package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers bundles everything the router needs. YouTube and Cafe are
// optional; their routes are only registered when configured.
type Handlers struct {
	LLM     *LLMHandler
	Health  *HealthHandler
	YouTube *YouTubeHandler
	Cafe    *CafeHandler
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", h.Health.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	llm := v1.Group("/llm")
	llm.POST("/streams", h.LLM.HandleStreams)
	llm.POST("/summarize-live-streams", h.LLM.HandleSummarizeYear)
	llm.POST("/summarize", h.LLM.HandleSummarize)
	llm.GET("/health", h.LLM.HandleLLMHealth)
	llm.GET("/cache/stats", h.LLM.HandleCacheStats)
	llm.POST("/cache/clear", h.LLM.HandleCacheClear)

	if h.YouTube != nil {
		v1.GET("/youtube/channel-info", h.YouTube.HandleChannelInfo)
	}

	if h.Cafe != nil {
		cafe := v1.Group("/cafe")
		cafe.GET("/profile", h.Cafe.HandleProfile)
		cafe.GET("/articles/:menuID/:page", h.Cafe.HandleArticles)
	}

	return router
}
