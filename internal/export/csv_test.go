package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

func sampleDashboard() *domain.Dashboard {
	return &domain.Dashboard{
		Metric: domain.MetricGrossTotal,
		Channels: []domain.ChannelStat{
			{Channel: domain.ChannelChatGPT, GMV: 150, Orders: 2, NewCustomers: 1},
		},
		Comparison: []domain.ComparisonRow{
			{Scope: "overall", AOV: 75, SampleSize: 2, LowSample: true},
		},
		TopProducts: []domain.ProductStat{
			{Title: "=HYPERLINK(\"evil\")", Handle: "widget", AIGMV: 100, AIOrders: 1, TopChannel: domain.ChannelChatGPT},
		},
		TopCustomers: []domain.CustomerStat{
			{CustomerID: "+491234", GMV: 150, Orders: 2, RepeatOrders: 1, HasAIOrder: true},
		},
	}
}

func TestParseTable(t *testing.T) {
	for _, valid := range []string{"channels", "Comparison", " trend ", "products", "customers"} {
		if _, err := ParseTable(valid); err != nil {
			t.Errorf("ParseTable(%q): unexpected error %v", valid, err)
		}
	}
	if _, err := ParseTable("orders"); err == nil {
		t.Error("expected error for unknown table")
	}
}

func TestWriteCommentLine(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleDashboard(), TableChannels, "en"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	lines := strings.Split(buf.String(), "\n")
	if !strings.HasPrefix(lines[0], "# Metric basis: gross-total") {
		t.Errorf("unexpected comment line: %q", lines[0])
	}
	if !strings.Contains(lines[0], "conservative") {
		t.Errorf("comment must carry the lower-bound caveat: %q", lines[0])
	}
	if lines[1] != "channel,gmv,orders,new_customers" {
		t.Errorf("unexpected header row: %q", lines[1])
	}
	if lines[2] != "ChatGPT,150.00,2,1" {
		t.Errorf("unexpected data row: %q", lines[2])
	}
}

func TestWriteGermanComment(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleDashboard(), TableChannels, "de"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "# Metrik-Basis") {
		t.Errorf("expected German comment, got %q", buf.String())
	}

	buf.Reset()
	// Unknown selectors fall back to English.
	if err := Write(&buf, sampleDashboard(), TableChannels, "fr"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "# Metric basis") {
		t.Errorf("expected English fallback, got %q", buf.String())
	}
}

func TestFormulaInjectionNeutralized(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleDashboard(), TableProducts, "en"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `'=HYPERLINK`) {
		t.Errorf("leading = must be neutralized: %q", out)
	}

	buf.Reset()
	if err := Write(&buf, sampleDashboard(), TableCustomers, "en"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(buf.String(), "'+491234") {
		t.Errorf("leading + must be neutralized: %q", buf.String())
	}
}

func TestNeutralize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"=1+1", "'=1+1"},
		{"@cmd", "'@cmd"},
		{"+49", "'+49"},
		{"-5", "'-5"},
		{"\tx", "'\tx"},
		{"\rx", "'\rx"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := neutralize(tc.in); got != tc.want {
			t.Errorf("neutralize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWriteComparisonTable(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleDashboard(), TableComparison, "en"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	if lines[2] != "overall,75.00,0.00,0.00,2,true" {
		t.Errorf("unexpected comparison row: %q", lines[2])
	}
}
