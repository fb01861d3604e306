package handler_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/catadmin/internal/config"
	"github.com/user/catadmin/internal/handler"
	"github.com/user/catadmin/internal/router"
	"github.com/user/catadmin/internal/service"
	"github.com/user/catadmin/internal/testutil"
	"github.com/user/catadmin/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type app struct {
	api    *testutil.CategoryAPI
	server *httptest.Server
	client *http.Client
}

func newApp(t *testing.T, names ...string) *app {
	t.Helper()

	api := testutil.NewCategoryAPI(names...)
	t.Cleanup(api.Close)

	cfg := &config.Config{
		SiteName:          "Admin",
		AppSecret:         "test-secret",
		CategoriesPerPage: 4,
	}
	svc := service.NewCategoryService(service.CategoryServiceOptions{
		BaseURL:  api.URL(),
		Timeout:  time.Second,
		CacheTTL: time.Minute,
	})
	h := handler.NewHandler(cfg, svc)

	srv := httptest.NewServer(router.NewEngine(cfg, h, nil, "../../web"))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &app{api: api, server: srv, client: &http.Client{Jar: jar}}
}

func (a *app) get(t *testing.T, path string) (*http.Response, *goquery.Document) {
	t.Helper()
	resp, err := a.client.Get(a.server.URL + path)
	require.NoError(t, err)
	return resp, parse(t, resp)
}

func (a *app) post(t *testing.T, path string, form url.Values) (*http.Response, *goquery.Document) {
	t.Helper()
	resp, err := a.client.PostForm(a.server.URL+path, form)
	require.NoError(t, err)
	return resp, parse(t, resp)
}

func parse(t *testing.T, resp *http.Response) *goquery.Document {
	t.Helper()
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	return doc
}

func notifications(doc *goquery.Document) []string {
	var out []string
	doc.Find(".notification").Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(s.Text()))
	})
	return out
}

func rowNames(doc *goquery.Document) []string {
	var out []string
	doc.Find("tr.category-row .category-name").Each(func(_ int, s *goquery.Selection) {
		out = append(out, s.Text())
	})
	return out
}

// ==================== 列表 ====================

func TestListFirstPage(t *testing.T) {
	a := newApp(t, "Ação", "Drama", "Comédia", "Terror", "Ficção")

	resp, doc := a.get(t, "/admin/categories")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"Ação", "Drama", "Comédia", "Terror"}, rowNames(doc))
	assert.Equal(t, "Nome", doc.Find("thead th").First().Text())
	assert.Equal(t, "Ações", doc.Find("thead th").Last().Text())

	href, _ := doc.Find("tr.category-row .edit-link").First().Attr("href")
	assert.Equal(t, "/admin/categories/edit/1", href)
	addHref, _ := doc.Find("#add-category").Attr("href")
	assert.Equal(t, "/admin/categories/new", addHref)

	assert.Equal(t, "Mostrando página 1 de 2", doc.Find("#page-caption").Text())
	assert.Equal(t, 1, doc.Find(".pagination .page-item.disabled").Length(), "第一页的上一页应禁用")
	assert.Equal(t, "1", doc.Find(".pagination .page-item.active .page-link").Text())
}

func TestListSecondPage(t *testing.T) {
	a := newApp(t, "Ação", "Drama", "Comédia", "Terror", "Ficção")

	_, doc := a.get(t, "/admin/categories?page=2")

	assert.Equal(t, []string{"Ficção"}, rowNames(doc))
	assert.Equal(t, "Mostrando página 2 de 2", doc.Find("#page-caption").Text())
	prev, _ := doc.Find(`a[data-page="prev"]`).Attr("href")
	assert.Equal(t, "/admin/categories", prev)
	assert.Equal(t, 0, doc.Find(`a[data-page="next"]`).Length())

	page, _ := doc.Find("tr.category-row .delete-form input[name=page]").Attr("value")
	assert.Equal(t, "2", page)
}

func TestListInvalidPageFallsBackToFirst(t *testing.T) {
	a := newApp(t, "Ação", "Drama", "Comédia", "Terror", "Ficção")

	for _, q := range []string{"abc", "0", "-3"} {
		_, doc := a.get(t, "/admin/categories?page="+q)
		assert.Equal(t, "Mostrando página 1 de 2", doc.Find("#page-caption").Text(), q)
	}
}

func TestListBeyondLastPageRedirects(t *testing.T) {
	a := newApp(t, "Ação", "Drama", "Comédia", "Terror", "Ficção")

	resp, doc := a.get(t, "/admin/categories?page=9")
	assert.Equal(t, "page=2", resp.Request.URL.RawQuery)
	assert.Equal(t, []string{"Ficção"}, rowNames(doc))
}

func TestListSinglePageHasNoPagination(t *testing.T) {
	a := newApp(t, "Ação", "Drama")

	_, doc := a.get(t, "/admin/categories")
	assert.Len(t, rowNames(doc), 2)
	assert.Equal(t, 0, doc.Find(".pagination").Length())
	assert.Equal(t, 0, doc.Find("#page-caption").Length())
}

func TestListEmpty(t *testing.T) {
	a := newApp(t)

	resp, doc := a.get(t, "/admin/categories")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Nenhuma categoria cadastrada.", strings.TrimSpace(doc.Find("tr.empty-row").Text()))
	assert.Equal(t, 0, doc.Find(".pagination").Length())
}

func TestListRemoteError(t *testing.T) {
	a := newApp(t, "Ação")
	a.api.FailNext("list", http.StatusServiceUnavailable, "Banco indisponível")

	resp, doc := a.get(t, "/admin/categories")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "Erro: Banco indisponível", doc.Find("#list-error").Text())
	assert.Equal(t, 0, doc.Find("table#categories").Length())
}

// ==================== 创建 ====================

func TestNewForm(t *testing.T) {
	a := newApp(t)

	resp, doc := a.get(t, "/admin/categories/new")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Nova Categoria", doc.Find(".card-header h2").Text())
	assert.Equal(t, "Nome da Categoria", doc.Find("label[for=name]").Text())

	value, _ := doc.Find("input[name=name]").Attr("value")
	assert.Empty(t, value)
	action, _ := doc.Find("#category-form").Attr("action")
	assert.Equal(t, "/admin/categories", action)
	cancel, _ := doc.Find("#cancel").Attr("href")
	assert.Equal(t, "/admin/categories", cancel)
}

func TestCreateBlankNameBlocksSubmission(t *testing.T) {
	a := newApp(t)

	for _, name := range []string{"", "   ", "\t"} {
		resp, doc := a.post(t, "/admin/categories", url.Values{"name": {name}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, doc.Find("input[name=name]").HasClass("is-invalid"))
		assert.Equal(t, "O nome é obrigatório", doc.Find(".invalid-feedback").Text())
	}
	assert.Equal(t, 0, a.api.Calls("create"))
}

func TestCreateMissingFieldBlocksSubmission(t *testing.T) {
	a := newApp(t)

	_, doc := a.post(t, "/admin/categories", url.Values{})
	assert.Equal(t, "O nome é obrigatório", doc.Find(".invalid-feedback").Text())
	assert.Equal(t, 0, a.api.Calls("create"))
}

func TestCreateMalformedBody(t *testing.T) {
	a := newApp(t)

	resp, err := a.client.Post(a.server.URL+"/admin/categories", "application/json", strings.NewReader(`{"name":`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	doc := parse(t, resp)

	notes := notifications(doc)
	require.Len(t, notes, 1)
	assert.True(t, strings.HasPrefix(notes[0], "❌ Erro: "), notes[0])
	assert.Equal(t, 0, doc.Find(".invalid-feedback").Length(), "非校验错误不应显示为必填提示")
	assert.Equal(t, 0, a.api.Calls("create"))
}

func TestCreateSuccess(t *testing.T) {
	a := newApp(t, "Ação")

	// 先加载列表，确认创建后缓存失效
	_, doc := a.get(t, "/admin/categories")
	require.Equal(t, []string{"Ação"}, rowNames(doc))

	resp, doc := a.post(t, "/admin/categories", url.Values{"name": {"Documentário"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/admin/categories", resp.Request.URL.Path)
	assert.Equal(t, []string{"✅ Categoria criada com sucesso!"}, notifications(doc))
	assert.Equal(t, []string{"Ação", "Documentário"}, rowNames(doc))

	// 通知只展示一次
	_, doc = a.get(t, "/admin/categories")
	assert.Empty(t, notifications(doc))
}

func TestCreateSubmitsNameAsTyped(t *testing.T) {
	a := newApp(t)

	a.post(t, "/admin/categories", url.Values{"name": {" Drama "}})
	stored, ok := a.api.Get("1")
	require.True(t, ok)
	assert.Equal(t, " Drama ", stored.Name)
}

func TestCreateRemoteFailure(t *testing.T) {
	a := newApp(t)
	a.api.FailNext("create", http.StatusConflict, "Nome duplicado")

	resp, doc := a.post(t, "/admin/categories", url.Values{"name": {"Drama"}})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "/admin/categories", resp.Request.URL.Path)
	assert.Equal(t, []string{"❌ Erro ao criar categoria: Nome duplicado"}, notifications(doc))

	value, _ := doc.Find("input[name=name]").Attr("value")
	assert.Equal(t, "Drama", value)
	assert.Equal(t, 0, a.api.Len())
}

// ==================== 编辑 ====================

func TestEditForm(t *testing.T) {
	a := newApp(t, "Ação", "Drama")

	resp, doc := a.get(t, "/admin/categories/edit/2")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Alterar Categoria", doc.Find(".card-header h2").Text())

	value, _ := doc.Find("input[name=name]").Attr("value")
	assert.Equal(t, "Drama", value)
	action, _ := doc.Find("#category-form").Attr("action")
	assert.Equal(t, "/admin/categories/edit/2", action)
}

func TestEditUnknownCategory(t *testing.T) {
	a := newApp(t)

	resp, doc := a.get(t, "/admin/categories/edit/42")
	assert.Equal(t, "/admin/categories", resp.Request.URL.Path)
	assert.Equal(t, []string{"❌ Erro: Categoria não encontrada"}, notifications(doc))
}

func TestUpdateSuccess(t *testing.T) {
	a := newApp(t, "Ação", "Drama")

	resp, doc := a.post(t, "/admin/categories/edit/2", url.Values{"name": {"Romance"}})
	assert.Equal(t, "/admin/categories", resp.Request.URL.Path)
	assert.Equal(t, []string{"✅ Categoria atualizada com sucesso!"}, notifications(doc))
	assert.Equal(t, []string{"Ação", "Romance"}, rowNames(doc))

	stored, _ := a.api.Get("2")
	assert.Equal(t, "Romance", stored.Name)
}

func TestUpdateBlankName(t *testing.T) {
	a := newApp(t, "Ação")

	_, doc := a.post(t, "/admin/categories/edit/1", url.Values{"name": {"  "}})
	assert.Equal(t, "Alterar Categoria", doc.Find(".card-header h2").Text())
	assert.Equal(t, "O nome é obrigatório", doc.Find(".invalid-feedback").Text())
	assert.Equal(t, 0, a.api.Calls("update"))
}

func TestUpdateRemoteFailure(t *testing.T) {
	a := newApp(t, "Ação")
	a.api.FailNext("update", http.StatusInternalServerError, "Falha interna")

	resp, doc := a.post(t, "/admin/categories/edit/1", url.Values{"name": {"Aventura"}})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, []string{"❌ Erro ao atualizar categoria: Falha interna"}, notifications(doc))

	value, _ := doc.Find("input[name=name]").Attr("value")
	assert.Equal(t, "Aventura", value)
	stored, _ := a.api.Get("1")
	assert.Equal(t, "Ação", stored.Name)
}

// ==================== 删除 ====================

func TestDeleteRequiresConfirmation(t *testing.T) {
	a := newApp(t, "Ação", "Drama")

	resp, doc := a.post(t, "/admin/categories/2/delete", url.Values{"page": {"1"}})
	assert.Equal(t, "/admin/categories/2/delete", resp.Request.URL.Path)
	assert.Equal(t, "Deseja excluir esta categoria?", doc.Find("#question").Text())
	assert.Equal(t, "Drama", doc.Find("#category-name").Text())

	confirm, _ := doc.Find(`#delete-form input[name=confirm]`).Attr("value")
	assert.Equal(t, "yes", confirm)
	assert.Equal(t, 0, a.api.Calls("delete"))
	assert.Equal(t, 2, a.api.Len())
}

func TestDeleteConfirmed(t *testing.T) {
	a := newApp(t, "Ação", "Drama")

	resp, doc := a.post(t, "/admin/categories/2/delete", url.Values{"page": {"1"}, "confirm": {"yes"}})
	assert.Equal(t, "/admin/categories", resp.Request.URL.Path)
	assert.Equal(t, []string{"✅ Categoria excluída com sucesso"}, notifications(doc))
	assert.Equal(t, []string{"Ação"}, rowNames(doc))
}

func TestDeleteKeepsCurrentPage(t *testing.T) {
	a := newApp(t, "A", "B", "C", "D", "E", "F")

	resp, doc := a.post(t, "/admin/categories/5/delete", url.Values{"page": {"2"}, "confirm": {"yes"}})
	assert.Equal(t, "page=2", resp.Request.URL.RawQuery)
	assert.Equal(t, []string{"F"}, rowNames(doc))
}

func TestDeleteLastItemOnLastPage(t *testing.T) {
	a := newApp(t, "A", "B", "C", "D", "E")

	resp, doc := a.post(t, "/admin/categories/5/delete", url.Values{"page": {"2"}, "confirm": {"yes"}})
	assert.Equal(t, "/admin/categories", resp.Request.URL.Path)
	assert.Empty(t, resp.Request.URL.RawQuery)
	assert.Equal(t, []string{"✅ Categoria excluída com sucesso"}, notifications(doc))
	assert.Equal(t, []string{"A", "B", "C", "D"}, rowNames(doc))
}

func TestDeleteRemoteFailure(t *testing.T) {
	a := newApp(t, "Ação")
	a.api.FailNext("delete", http.StatusConflict, "Categoria em uso")

	_, doc := a.post(t, "/admin/categories/1/delete", url.Values{"confirm": {"yes"}})
	assert.Equal(t, []string{"❌ Erro: Categoria em uso"}, notifications(doc))
	assert.Equal(t, []string{"Ação"}, rowNames(doc))
}

func TestDeleteConfirmationUnknownCategory(t *testing.T) {
	a := newApp(t)

	resp, doc := a.get(t, "/admin/categories/9/delete")
	assert.Equal(t, "/admin/categories", resp.Request.URL.Path)
	assert.Equal(t, []string{"❌ Erro: Categoria não encontrada"}, notifications(doc))
}

func (a *app) deleteJSON(t *testing.T, path string, body string) (*http.Response, utils.Response) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(http.MethodDelete, a.server.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out utils.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestDeleteAPI(t *testing.T) {
	a := newApp(t, "Ação", "Drama")

	resp, body := a.deleteJSON(t, "/admin/categories/1?confirm=yes", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
	assert.Equal(t, "Categoria excluída com sucesso", body.Message)
	_, ok := a.api.Get("1")
	assert.False(t, ok)

	resp, body = a.deleteJSON(t, "/admin/categories/2", `{"confirm":"yes"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
	assert.Equal(t, 0, a.api.Len())

	resp, _ = a.deleteJSON(t, "/admin/categories/1?confirm=yes", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteAPIRequiresConfirmation(t *testing.T) {
	a := newApp(t, "Ação")

	for _, tc := range []struct{ path, body string }{
		{"/admin/categories/1", ""},
		{"/admin/categories/1?confirm=no", ""},
		{"/admin/categories/1", `{"confirm":"maybe"}`},
		{"/admin/categories/1", `{`},
	} {
		resp, body := a.deleteJSON(t, tc.path, tc.body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, tc.path+" "+tc.body)
		assert.False(t, body.Success)
	}
	assert.Equal(t, 0, a.api.Calls("delete"))
	assert.Equal(t, 1, a.api.Len())
}

// ==================== 其他 ====================

func TestAdminRootRedirects(t *testing.T) {
	a := newApp(t)

	resp, _ := a.get(t, "/admin")
	assert.Equal(t, "/admin/categories", resp.Request.URL.Path)
}

func TestNotFoundPage(t *testing.T) {
	a := newApp(t)

	resp, doc := a.get(t, "/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "404", doc.Find("h1").Text())
}

func TestHealth(t *testing.T) {
	a := newApp(t)

	resp, err := a.client.Get(a.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
