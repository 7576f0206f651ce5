package dashboard

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// defaultListLimit bounds list endpoints that take no explicit limit.
const defaultListLimit = 50

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, db *gorm.DB) {
	router.GET("/healthz", handleHealthz(db))
	router.GET("/api/vehicles", handleVehicles(db))
	router.GET("/api/actions", handleActions(db))
	router.GET("/api/vehicles/:id/telemetry", handleTelemetry(db))
}

func handleHealthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleVehicles(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := VehicleSummary(db)
		if err != nil {
			log.Printf("dashboard: vehicles: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"vehicles": rows})
	}
}

func handleActions(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := queryLimit(c, defaultListLimit)
		rows, err := RecentActions(db, limit)
		if err != nil {
			log.Printf("dashboard: actions: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"actions": rows})
	}
}

func handleTelemetry(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vehicle id"})
			return
		}
		limit := queryLimit(c, defaultListLimit)
		rows, err := TelemetryHistory(db, uint(id), limit)
		if err != nil {
			log.Printf("dashboard: telemetry: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"telemetry": rows})
	}
}

// queryLimit reads a "limit" query parameter, falling back to def for
// missing or unusable values.
func queryLimit(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 500 {
		return def
	}
	return n
}
