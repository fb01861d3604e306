package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/user/catadmin/internal/model"
	"github.com/user/catadmin/internal/service"
	"github.com/user/catadmin/internal/utils"
)

const categoriesPath = "/admin/categories"

// 用户可见文案
const (
	msgNameRequired    = "O nome é obrigatório"
	msgCreated         = "Categoria criada com sucesso!"
	msgUpdated         = "Categoria atualizada com sucesso!"
	msgDeleted         = "Categoria excluída com sucesso"
	msgCreateFailed    = "Erro ao criar categoria: "
	msgUpdateFailed    = "Erro ao atualizar categoria: "
	msgGenericFailed   = "Erro: "
	msgConfirmDelete   = "Deseja excluir esta categoria?"
	msgConfirmRequired = "Confirmação obrigatória: envie confirm=yes"
	titleCategories    = "Categorias"
	titleNewCategory   = "Nova Categoria"
	titleEditCategory  = "Alterar Categoria"
	titleDeleteConfirm = "Excluir Categoria"
)

// categoryForm 表单字段，notblank 在去除空白后检查
type categoryForm struct {
	Name string `form:"name" json:"name" binding:"notblank"`
}

var registerValidationOnce sync.Once

// RegisterValidations 注册自定义校验规则，注册失败直接退出
func RegisterValidations() {
	registerValidationOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			log.Fatal().Msg("表单校验引擎不是 validator/v10")
		}
		if err := v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return model.CategoryFields{Name: fl.Field().String()}.Valid()
		}); err != nil {
			log.Fatal().Err(err).Msg("注册校验规则 notblank 失败")
		}
	})
}

// fieldErrors 将校验错误转换为字段 -> 提示
func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	errs := map[string]string{}
	for _, fe := range verrs {
		if fe.Field() == "Name" {
			errs["name"] = msgNameRequired
		}
	}
	return errs
}

// bindError 校验失败在字段下提示（200），其他绑定错误作为通知展示（400）
func bindError(v categoryFormView, err error) (int, categoryFormView) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		v.Errors = fieldErrors(verrs)
		return http.StatusOK, v
	}
	v.Notice = &Flash{Type: FlashError, Message: msgGenericFailed + err.Error()}
	return http.StatusBadRequest, v
}

// Pagination 分页控件数据
type Pagination struct {
	CurrentPage int
	TotalPages  int
	Pages       []int
	PrevPage    int
	NextPage    int
	HasPrev     bool
	HasNext     bool
}

// Show 只有一页时不显示分页
func (p Pagination) Show() bool {
	return p.TotalPages > 1
}

func newPagination(current, total int) Pagination {
	p := Pagination{
		CurrentPage: current,
		TotalPages:  total,
		PrevPage:    current - 1,
		NextPage:    current + 1,
		HasPrev:     current > 1,
		HasNext:     current < total,
	}
	for i := 1; i <= total; i++ {
		p.Pages = append(p.Pages, i)
	}
	return p
}

// parsePage 非法或小于 1 的页码按 1 处理
func parsePage(s string) int {
	page, err := strconv.Atoi(s)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func listURL(page int) string {
	if page <= 1 {
		return categoriesPath
	}
	return categoriesPath + "?page=" + strconv.Itoa(page)
}

// ==================== 分类列表 ====================

// AdminCategories 分类列表页面
func (h *Handler) AdminCategories(c *gin.Context) {
	page := parsePage(c.Query("page"))

	result, err := h.Categories.GetCategoriesByPage(c.Request.Context(), page, h.Config.CategoriesPerPage)
	if err != nil {
		log.Warn().Err(err).Int("page", page).Msg("获取分类列表失败")
		c.HTML(http.StatusBadGateway, "admin_categories.html", h.RenderData(c, gin.H{
			"Title": titleCategories + " - " + h.Config.SiteName,
			"Error": msgGenericFailed + err.Error(),
		}))
		return
	}

	// 删除最后一页的最后一条后回到新的最后一页
	if result.TotalPages > 0 && page > result.TotalPages {
		c.Redirect(http.StatusFound, listURL(result.TotalPages))
		return
	}

	c.HTML(http.StatusOK, "admin_categories.html", h.RenderData(c, gin.H{
		"Title":      titleCategories + " - " + h.Config.SiteName,
		"Categories": result.Categories,
		"Pagination": newPagination(page, result.TotalPages),
	}))
}

// ==================== 删除 ====================

// AdminCategoryDeleteConfirm 删除确认页面
func (h *Handler) AdminCategoryDeleteConfirm(c *gin.Context) {
	id := c.Param("id")
	page := parsePage(c.Query("page"))

	category, err := h.Categories.GetCategory(c.Request.Context(), id)
	if err != nil {
		h.flash(c, FlashError, msgGenericFailed+err.Error())
		c.Redirect(http.StatusFound, listURL(page))
		return
	}

	c.HTML(http.StatusOK, "admin_category_delete.html", h.RenderData(c, gin.H{
		"Title":    titleDeleteConfirm + " - " + h.Config.SiteName,
		"Category": category,
		"Question": msgConfirmDelete,
		"Page":     page,
		"Action":   categoriesPath + "/" + url.PathEscape(id) + "/delete",
		"Cancel":   listURL(page),
	}))
}

// AdminCategoryDelete 删除分类（需要 confirm=yes）
func (h *Handler) AdminCategoryDelete(c *gin.Context) {
	id := c.Param("id")
	page := parsePage(c.PostForm("page"))

	if c.PostForm("confirm") != "yes" {
		c.Redirect(http.StatusSeeOther, categoriesPath+"/"+url.PathEscape(id)+"/delete?page="+strconv.Itoa(page))
		return
	}

	if err := h.Categories.DeleteCategory(c.Request.Context(), id); err != nil {
		log.Warn().Err(err).Str("categoryID", id).Msg("删除分类失败")
		h.flash(c, FlashError, msgGenericFailed+err.Error())
		c.Redirect(http.StatusSeeOther, listURL(page))
		return
	}

	h.flash(c, FlashSuccess, msgDeleted)
	c.Redirect(http.StatusSeeOther, listURL(page))
}

// AdminCategoryDeleteAPI 删除分类（JSON，供脚本调用），需要 ?confirm=yes 或 {"confirm":"yes"}
func (h *Handler) AdminCategoryDeleteAPI(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		utils.BadRequest(c, "ID inválido")
		return
	}

	confirm := c.Query("confirm")
	if confirm == "" && c.Request.ContentLength != 0 {
		var body struct {
			Confirm string `json:"confirm"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			utils.BadRequest(c, msgGenericFailed+err.Error())
			return
		}
		confirm = body.Confirm
	}
	if confirm != "yes" {
		utils.BadRequest(c, msgConfirmRequired)
		return
	}

	if err := h.Categories.DeleteCategory(c.Request.Context(), id); err != nil {
		if service.IsNotFound(err) {
			utils.NotFound(c, msgGenericFailed+err.Error())
			return
		}
		utils.BadGateway(c, msgGenericFailed+err.Error())
		return
	}

	utils.SuccessWithMessage(c, msgDeleted, gin.H{"id": id})
}

// ==================== 创建 / 编辑 ====================

type categoryFormView struct {
	Editing bool
	ID      string
	Name    string
	Errors  map[string]string
	Notice  *Flash
}

func (h *Handler) renderCategoryForm(c *gin.Context, status int, v categoryFormView) {
	title := titleNewCategory
	action := categoriesPath
	if v.Editing {
		title = titleEditCategory
		action = categoriesPath + "/edit/" + url.PathEscape(v.ID)
	}
	if v.Errors == nil {
		v.Errors = map[string]string{}
	}

	data := gin.H{
		"Title":   title + " - " + h.Config.SiteName,
		"Heading": title,
		"Action":  action,
		"Cancel":  categoriesPath,
		"Name":    v.Name,
		"Errors":  v.Errors,
	}
	if v.Notice != nil {
		data["Notice"] = *v.Notice
	}
	c.HTML(status, "admin_category_form.html", h.RenderData(c, data))
}

// AdminCategoryNew 新建分类页面
func (h *Handler) AdminCategoryNew(c *gin.Context) {
	h.renderCategoryForm(c, http.StatusOK, categoryFormView{})
}

// AdminCategoryEdit 编辑分类页面
func (h *Handler) AdminCategoryEdit(c *gin.Context) {
	id := c.Param("id")

	category, err := h.Categories.GetCategory(c.Request.Context(), id)
	if err != nil {
		log.Warn().Err(err).Str("categoryID", id).Msg("获取分类失败")
		h.flash(c, FlashError, msgGenericFailed+err.Error())
		c.Redirect(http.StatusFound, categoriesPath)
		return
	}

	h.renderCategoryForm(c, http.StatusOK, categoryFormView{
		Editing: true,
		ID:      category.ID,
		Name:    category.Name,
	})
}

// AdminCategoryCreate 创建分类
func (h *Handler) AdminCategoryCreate(c *gin.Context) {
	var form categoryForm
	if err := c.ShouldBind(&form); err != nil {
		status, view := bindError(categoryFormView{Name: form.Name}, err)
		h.renderCategoryForm(c, status, view)
		return
	}

	if _, err := h.Categories.CreateCategory(c.Request.Context(), model.CategoryFields{Name: form.Name}); err != nil {
		log.Warn().Err(err).Str("name", form.Name).Msg("创建分类失败")
		h.renderCategoryForm(c, http.StatusBadGateway, categoryFormView{
			Name:   form.Name,
			Notice: &Flash{Type: FlashError, Message: msgCreateFailed + err.Error()},
		})
		return
	}

	h.flash(c, FlashSuccess, msgCreated)
	c.Redirect(http.StatusSeeOther, categoriesPath)
}

// AdminCategoryUpdate 更新分类
func (h *Handler) AdminCategoryUpdate(c *gin.Context) {
	id := c.Param("id")

	var form categoryForm
	if err := c.ShouldBind(&form); err != nil {
		status, view := bindError(categoryFormView{Editing: true, ID: id, Name: form.Name}, err)
		h.renderCategoryForm(c, status, view)
		return
	}

	if _, err := h.Categories.UpdateCategory(c.Request.Context(), id, model.CategoryFields{Name: form.Name}); err != nil {
		log.Warn().Err(err).Str("categoryID", id).Msg("更新分类失败")
		h.renderCategoryForm(c, http.StatusBadGateway, categoryFormView{
			Editing: true,
			ID:      id,
			Name:    form.Name,
			Notice:  &Flash{Type: FlashError, Message: msgUpdateFailed + err.Error()},
		})
		return
	}

	h.flash(c, FlashSuccess, msgUpdated)
	c.Redirect(http.StatusSeeOther, categoriesPath)
}
