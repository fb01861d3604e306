package handler

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/user/catadmin/internal/config"
	"github.com/user/catadmin/internal/service"
)

// 通知类型
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// Flash 一次性通知
type Flash struct {
	Type    string
	Message string
}

// Handler HTTP 处理器
type Handler struct {
	Config     *config.Config
	Categories service.CategoryAPI
}

// NewHandler 创建处理器
func NewHandler(cfg *config.Config, categories service.CategoryAPI) *Handler {
	RegisterValidations()
	return &Handler{
		Config:     cfg,
		Categories: categories,
	}
}

// RenderData 统一封装公共渲染数据
func (h *Handler) RenderData(c *gin.Context, data gin.H) gin.H {
	res := gin.H{
		"SiteName":   h.Config.SiteName,
		"Path":       c.Request.URL.Path,
		"ActiveMenu": h.getActiveMenu(c.Request.URL.Path),
	}

	flashes := h.popFlashes(c)
	if notice, ok := data["Notice"].(Flash); ok {
		flashes = append(flashes, notice)
		delete(data, "Notice")
	}
	res["Flashes"] = flashes

	// 合并传入的数据
	for k, v := range data {
		res[k] = v
	}

	return res
}

// getActiveMenu 根据路径判断当前高亮菜单
func (h *Handler) getActiveMenu(path string) string {
	switch {
	case strings.HasPrefix(path, "/admin/categories"):
		return "categories"
	case path == "/admin":
		return "dashboard"
	default:
		return ""
	}
}

// flash 写入一次性通知，下一次页面渲染时展示
func (h *Handler) flash(c *gin.Context, typ, message string) {
	session := sessions.Default(c)
	session.AddFlash(message, typ)
	if err := session.Save(); err != nil {
		log.Error().Err(err).Msg("保存 Session 失败")
	}
}

func (h *Handler) popFlashes(c *gin.Context) []Flash {
	session := sessions.Default(c)

	var flashes []Flash
	for _, typ := range []string{FlashSuccess, FlashError} {
		for _, msg := range session.Flashes(typ) {
			if s, ok := msg.(string); ok {
				flashes = append(flashes, Flash{Type: typ, Message: s})
			}
		}
	}
	if len(flashes) > 0 {
		if err := session.Save(); err != nil {
			log.Error().Err(err).Msg("保存 Session 失败")
		}
	}
	return flashes
}

// AdminDashboard 后台首页，目前只有分类管理
func (h *Handler) AdminDashboard(c *gin.Context) {
	c.Redirect(http.StatusFound, categoriesPath)
}

// NotFound 404 页面
func (h *Handler) NotFound(c *gin.Context) {
	c.HTML(http.StatusNotFound, "404.html", h.RenderData(c, gin.H{
		"Title": "Página não encontrada - " + h.Config.SiteName,
	}))
}
