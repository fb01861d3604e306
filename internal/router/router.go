package router

import (
	"html/template"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/multitemplate"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/catadmin/internal/config"
	"github.com/user/catadmin/internal/handler"
	"github.com/user/catadmin/internal/middleware"
)

// NewEngine 组装 Gin 引擎：中间件、模板、静态文件和路由
func NewEngine(cfg *config.Config, h *handler.Handler, limiter *middleware.RateLimiter, webDir string) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// 启用 gzip，默认压缩级别
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// Session 用于一次性通知
	store := cookie.NewStore([]byte(cfg.AppSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 天
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("catadmin_session", store))

	// 加载模板（使用 multitemplate 解决继承问题）
	r.HTMLRender = LoadTemplates(filepath.Join(webDir, "templates"))

	// 静态文件
	r.Static("/static", filepath.Join(webDir, "static"))

	// 中间件
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.Security())
	r.Use(middleware.CORS(cfg.AllowedOrigins...))

	RegisterRoutes(r, h, limiter)
	return r
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(r *gin.Engine, h *handler.Handler, limiter *middleware.RateLimiter) {
	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.NoRoute(h.NotFound)

	// ==================== 管理后台 ====================
	admin := r.Group("/admin")
	{
		admin.GET("", h.AdminDashboard)

		// 分类管理
		admin.GET("/categories", h.AdminCategories)
		admin.GET("/categories/new", h.AdminCategoryNew)
		admin.GET("/categories/edit/:id", h.AdminCategoryEdit)
		admin.GET("/categories/:id/delete", h.AdminCategoryDeleteConfirm)
	}

	// 写操作限流
	mutations := admin.Group("")
	if limiter != nil {
		mutations.Use(limiter.Middleware())
	}
	{
		mutations.POST("/categories", h.AdminCategoryCreate)
		mutations.POST("/categories/edit/:id", h.AdminCategoryUpdate)
		mutations.POST("/categories/:id/delete", h.AdminCategoryDelete)
		mutations.DELETE("/categories/:id", h.AdminCategoryDeleteAPI)
	}
}

// LoadTemplates 使用 multitemplate 加载模板，解决模板继承问题
func LoadTemplates(templatesDir string) multitemplate.Renderer {
	r := multitemplate.NewRenderer()

	// 获取布局和局部模板
	layouts, err := filepath.Glob(templatesDir + "/layouts/*.html")
	if err != nil {
		panic(err)
	}

	partials, err := filepath.Glob(templatesDir + "/partials/*.html")
	if err != nil {
		panic(err)
	}

	// 组装模板文件列表
	assemble := func(view string) []string {
		files := make([]string, 0)
		files = append(files, layouts...)
		files = append(files, partials...)
		files = append(files, view)
		return files
	}

	// 注册所有页面模板
	pages := []string{
		"404",
		"admin_categories", "admin_category_form", "admin_category_delete",
	}

	for _, page := range pages {
		viewPath := templatesDir + "/pages/" + page + ".html"
		r.AddFromFilesFuncs(page+".html", FuncMap(), assemble(viewPath)...)
	}

	return r
}

// FuncMap 模板函数
func FuncMap() template.FuncMap {
	return template.FuncMap{
		// pageURL 分类列表第 n 页
		"pageURL": func(page int) string {
			if page <= 1 {
				return "/admin/categories"
			}
			return "/admin/categories?page=" + strconv.Itoa(page)
		},
	}
}
