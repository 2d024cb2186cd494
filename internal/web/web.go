package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"docchat-web/internal/view"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Templates 解析内嵌页面模板
func Templates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"fileSize": view.FileSize,
	}).ParseFS(templateFS, "templates/*.html")
}

// Static 内嵌的 js/css
func Static() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
