package main

import (
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"carouselgen/internal/config"
	"carouselgen/internal/credstore"
	"carouselgen/internal/export"
	"carouselgen/internal/gemini"
	"carouselgen/internal/model"
	"carouselgen/internal/storage"
	"carouselgen/internal/workflow"
)

func main() {
	// 初始化配置和日志
	cfg := config.Load()
	if err := cfg.InitLogging(); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}

	// 初始化本地存储
	db, err := storage.Open(cfg.DBPath())
	if err != nil {
		logrus.WithError(err).Fatal("打开本地存储失败")
	}
	defer db.Close()

	// 初始化生成客户端、凭据存储和编排器
	client := gemini.NewClient(cfg.PlanModel, cfg.ImageModel, cfg.PostModel, cfg.Mock)
	creds := credstore.New(db, client)
	orchestrator := workflow.New(client, creds, db)

	// 初始化Gin路由
	router := gin.Default()

	api := router.Group("/api")
	{
		api.POST("/workflow/start", handleWorkflowStart(orchestrator))
		api.GET("/workflow/state", handleWorkflowState(orchestrator))
		api.POST("/workflow/reset", handleWorkflowReset(orchestrator))

		api.POST("/references", handleAddReferences(orchestrator))
		api.DELETE("/references", handleClearReferences(orchestrator))

		api.GET("/credential", handleCredentialStatus(creds))
		api.POST("/credential/test", handleCredentialTest(creds))
		api.POST("/credential/export", handleCredentialExport(creds))
		api.POST("/credential/import", handleCredentialImport(creds))

		api.GET("/export/archive", handleExportArchive(orchestrator))
		api.GET("/export/merged", handleExportMerged(orchestrator))

		api.GET("/runs", handleRecentRuns(db))
	}

	// 启动服务器
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	// 在goroutine中启动服务器
	go func() {
		logrus.Infof("服务器启动在 %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("启动服务器失败")
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("关闭服务器...")

	// 优雅关闭服务器
	if err := srv.Close(); err != nil {
		logrus.WithError(err).Fatal("服务器关闭失败")
	}

	logrus.Info("服务器已关闭")
}

// handleWorkflowStart 发起一次工作流运行
func handleWorkflowStart(o *workflow.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req workflow.StartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
			return
		}
		if req.SlideCount == 0 {
			req.SlideCount = 5
		}

		if err := o.Start(req); err != nil {
			switch err {
			case workflow.ErrRunInFlight:
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			case workflow.ErrCredentialRequired:
				c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "needs_credential": true})
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusAccepted, o.Snapshot())
	}
}

// handleWorkflowState 读取当前工作流快照
func handleWorkflowState(o *workflow.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Snapshot())
	}
}

// handleWorkflowReset 重置工作流
func handleWorkflowReset(o *workflow.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := o.Reset(); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, o.Snapshot())
	}
}

// handleAddReferences 上传风格参考图（base64编码），总数超过20整批拒绝
func handleAddReferences(o *workflow.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Images []struct {
				MIMEType string `json:"mime_type"`
				Data     string `json:"data"`
			} `json:"images"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
			return
		}

		imgs := make([]model.ReferenceImage, 0, len(req.Images))
		for i, in := range req.Images {
			data, err := base64.StdEncoding.DecodeString(in.Data)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("第%d张图片不是有效的base64", i+1)})
				return
			}
			mime := in.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			imgs = append(imgs, model.ReferenceImage{MIMEType: mime, Data: data})
		}

		if err := o.AddReferenceImages(imgs...); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": o.ReferenceImageCount()})
	}
}

// handleClearReferences 清空参考图
func handleClearReferences(o *workflow.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		o.ClearReferenceImages()
		c.JSON(http.StatusOK, gin.H{"count": 0})
	}
}

// handleCredentialStatus 返回是否已有有效凭据（不回传凭据本身）
func handleCredentialStatus(creds *credstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, ok := creds.Get()
		c.JSON(http.StatusOK, gin.H{"present": ok})
	}
}

// handleCredentialTest 校验并保存候选凭据
func handleCredentialTest(creds *credstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Credential string `json:"credential"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
			return
		}
		if err := creds.Test(c.Request.Context(), req.Credential); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"present": true})
	}
}

// handleCredentialExport 导出口令加密的凭据文件
func handleCredentialExport(creds *credstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Credential string `json:"credential"`
			Passphrase string `json:"passphrase"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
			return
		}
		blob, err := creds.ExportEncrypted(req.Credential, req.Passphrase)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="credential.cgsec"`)
		c.Data(http.StatusOK, "application/octet-stream", blob)
	}
}

// handleCredentialImport 解密导入凭据文件并覆盖当前凭据
func handleCredentialImport(creds *credstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Blob       string `json:"blob"`
			Passphrase string `json:"passphrase"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
			return
		}
		if _, err := creds.ImportEncrypted([]byte(req.Blob), req.Passphrase); err != nil {
			status := http.StatusBadRequest
			if err == credstore.ErrDecryptionFailed {
				status = http.StatusUnauthorized
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"present": true})
	}
}

// handleExportArchive 下载全部分页图片的zip包
func handleExportArchive(o *workflow.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := export.Archive(o.Snapshot().Segments)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="carousel.zip"`)
		c.Data(http.StatusOK, "application/zip", data)
	}
}

// handleExportMerged 下载纵向拼接的单张PNG
func handleExportMerged(o *workflow.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := export.MergeVertical(o.Snapshot().Segments)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if data == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="carousel_merged.png"`)
		c.Data(http.StatusOK, "image/png", data)
	}
}

// handleRecentRuns 最近的运行记录
func handleRecentRuns(db *storage.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		runs, err := db.RecentRuns(20)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}
