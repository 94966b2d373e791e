// Package export serializes dashboard tables to CSV for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

// Table selects which dashboard facet to export.
type Table string

const (
	TableChannels   Table = "channels"
	TableComparison Table = "comparison"
	TableTrend      Table = "trend"
	TableProducts   Table = "products"
	TableCustomers  Table = "customers"
)

// ParseTable validates a table selector.
func ParseTable(s string) (Table, error) {
	switch Table(strings.ToLower(strings.TrimSpace(s))) {
	case TableChannels:
		return TableChannels, nil
	case TableComparison:
		return TableComparison, nil
	case TableTrend:
		return TableTrend, nil
	case TableProducts:
		return TableProducts, nil
	case TableCustomers:
		return TableCustomers, nil
	}
	return "", fmt.Errorf("unknown export table %q", s)
}

var comments = map[string]string{
	"en": "# Metric basis: %s. AI attribution is a conservative lower-bound estimate; unattributed AI traffic is not counted.",
	"de": "# Metrik-Basis: %s. Die KI-Zuordnung ist eine konservative Untergrenze; nicht zugeordneter KI-Traffic wird nicht gezählt.",
}

func commentLine(lang string, metric domain.Metric) string {
	format, ok := comments[strings.ToLower(strings.TrimSpace(lang))]
	if !ok {
		format = comments["en"]
	}
	return fmt.Sprintf(format, metric)
}

// neutralize guards a cell against spreadsheet formula injection. Cells
// starting with an injection-prone character get a leading single quote;
// standard CSV quoting is left to the csv writer.
func neutralize(cell string) string {
	if cell == "" {
		return cell
	}
	switch cell[0] {
	case '=', '@', '+', '-', '\t', '\r':
		return "'" + cell
	}
	return cell
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func count(n int) string {
	return strconv.Itoa(n)
}

// Write serializes one dashboard table to w: a localized comment line,
// a fixed header row, then one row per entity.
func Write(w io.Writer, d *domain.Dashboard, table Table, lang string) error {
	if _, err := fmt.Fprintln(w, commentLine(lang, d.Metric)); err != nil {
		return fmt.Errorf("failed to write comment line: %w", err)
	}

	cw := csv.NewWriter(w)
	var err error
	switch table {
	case TableChannels:
		err = writeChannels(cw, d)
	case TableComparison:
		err = writeComparison(cw, d)
	case TableTrend:
		err = writeTrend(cw, d)
	case TableProducts:
		err = writeProducts(cw, d)
	case TableCustomers:
		err = writeCustomers(cw, d)
	default:
		return fmt.Errorf("unknown export table %q", table)
	}
	if err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

func writeRow(cw *csv.Writer, cells ...string) error {
	for i, c := range cells {
		cells[i] = neutralize(c)
	}
	return cw.Write(cells)
}

func writeChannels(cw *csv.Writer, d *domain.Dashboard) error {
	if err := cw.Write([]string{"channel", "gmv", "orders", "new_customers"}); err != nil {
		return err
	}
	for _, s := range d.Channels {
		if err := writeRow(cw, string(s.Channel), num(s.GMV), count(s.Orders), count(s.NewCustomers)); err != nil {
			return err
		}
	}
	return nil
}

func writeComparison(cw *csv.Writer, d *domain.Dashboard) error {
	if err := cw.Write([]string{"scope", "aov", "new_customer_rate", "repeat_rate", "sample_size", "low_sample"}); err != nil {
		return err
	}
	for _, r := range d.Comparison {
		if err := writeRow(cw, r.Scope, num(r.AOV), num(r.NewCustomerRate), num(r.RepeatRate),
			count(r.SampleSize), strconv.FormatBool(r.LowSample)); err != nil {
			return err
		}
	}
	return nil
}

func writeTrend(cw *csv.Writer, d *domain.Dashboard) error {
	if err := cw.Write([]string{"bucket", "start", "total_gmv", "total_orders", "ai_gmv", "ai_orders"}); err != nil {
		return err
	}
	for _, b := range d.Trend {
		if err := writeRow(cw, b.Label, b.Start.Format("2006-01-02"),
			num(b.TotalGMV), count(b.TotalOrders), num(b.AIGMV), count(b.AIOrders)); err != nil {
			return err
		}
	}
	return nil
}

func writeProducts(cw *csv.Writer, d *domain.Dashboard) error {
	if err := cw.Write([]string{"title", "handle", "ai_gmv", "ai_orders", "top_channel"}); err != nil {
		return err
	}
	for _, p := range d.TopProducts {
		if err := writeRow(cw, p.Title, p.Handle, num(p.AIGMV), count(p.AIOrders), string(p.TopChannel)); err != nil {
			return err
		}
	}
	return nil
}

func writeCustomers(cw *csv.Writer, d *domain.Dashboard) error {
	if err := cw.Write([]string{"customer_id", "gmv", "orders", "repeat_orders", "has_ai_order", "acquired_via_ai"}); err != nil {
		return err
	}
	for _, c := range d.TopCustomers {
		if err := writeRow(cw, c.CustomerID, num(c.GMV), count(c.Orders), count(c.RepeatOrders),
			strconv.FormatBool(c.HasAIOrder), strconv.FormatBool(c.AcquiredViaAI)); err != nil {
			return err
		}
	}
	return nil
}
