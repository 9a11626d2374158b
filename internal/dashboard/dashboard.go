// Package dashboard renders the operator HTML page listing farmers and reports.
package dashboard

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/SmartInclusion/SmartInclusion/internal/models"
)

// SentText is shown after a broadcast was accepted.
const SentText = "Message sent to all farmers!"

// DateLayout formats report timestamps.
const DateLayout = "2006-01-02 15:04:05"

//go:embed dashboard.html
var pageSource string

var page = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"formatDate": formatDate,
}).Parse(pageSource))

// View is the data behind one dashboard render.
type View struct {
	Farmers   []models.FarmerRecord
	Crops     []models.CropReport
	Livestock []models.LivestockReport
	Sent      bool
}

type pageData struct {
	View
	SentText         string
	MaxMessageLength int
}

// Render writes the dashboard page. Record values are HTML-escaped.
func Render(w io.Writer, v View) error {
	if err := page.Execute(w, pageData{View: v, SentText: SentText, MaxMessageLength: models.MaxBroadcastLength}); err != nil {
		return fmt.Errorf("failed to render dashboard: %w", err)
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}
