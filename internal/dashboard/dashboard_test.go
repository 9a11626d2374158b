package dashboard

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/SmartInclusion/SmartInclusion/internal/models"
)

func render(t *testing.T, v View) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Render(&buf, v); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	return buf.String()
}

func TestRender_Tables(t *testing.T) {
	date := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	out := render(t, View{
		Farmers:   []models.FarmerRecord{{ID: 1, Phone: "0711", Name: "Jane", Location: "Nairobi", FarmSize: "2ha", Crops: "Maize", Livestock: "none"}},
		Crops:     []models.CropReport{{ID: 2, Phone: "0711", Crop: "Beans", Quantity: "50kg", Date: date}},
		Livestock: []models.LivestockReport{{ID: 3, Phone: "0722", Animal: "Goats", Count: "10", Date: date}},
	})

	for _, want := range []string{
		"<h2>Farmers</h2>", "<h2>Crop Reports</h2>", "<h2>Livestock Reports</h2>",
		"<td>Jane</td>", "<td>Nairobi</td>", "<td>50kg</td>", "<td>Goats</td>",
		"<td>2026-05-04 10:30:00</td>",
		`action="/broadcast"`, `name="message"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
	if strings.Contains(out, SentText) {
		t.Error("confirmation should only render when Sent is set")
	}
}

func TestRender_SentFlag(t *testing.T) {
	if out := render(t, View{Sent: true}); !strings.Contains(out, SentText) {
		t.Errorf("expected confirmation line, got:\n%s", out)
	}
}

func TestRender_EscapesRecordValues(t *testing.T) {
	out := render(t, View{Farmers: []models.FarmerRecord{{ID: 1, Name: "<script>alert(1)</script>"}}})
	if strings.Contains(out, "<script>alert(1)</script>") {
		t.Error("record values must be escaped")
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Error("expected escaped value in output")
	}
}

func TestFormatDate(t *testing.T) {
	if formatDate(time.Time{}) != "" {
		t.Error("zero time renders empty")
	}
	eat := time.FixedZone("EAT", 3*60*60)
	if got := formatDate(time.Date(2026, 1, 2, 6, 0, 0, 0, eat)); got != "2026-01-02 03:00:00" {
		t.Errorf("formatDate = %q", got)
	}
}
