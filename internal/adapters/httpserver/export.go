package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/phenrril/storefront/internal/usecase"
)

const cartSheet = "Cart"

func (s *Server) handleCartExport(w http.ResponseWriter, r *http.Request) {
	f, err := cartWorkbook(s.checkout.Quote(jarFrom(r)))
	if err != nil {
		log.Error().Err(err).Msg("cart export")
		http.Error(w, "could not build the spreadsheet", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	name := fmt.Sprintf("cart-%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	if err := f.Write(w); err != nil {
		log.Error().Err(err).Msg("cart export write")
	}
}

// cartWorkbook lays out the cart lines followed by the price breakdown.
func cartWorkbook(q usecase.Quote) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", cartSheet); err != nil {
		f.Close()
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	header := []any{"Product", "Category", "Unit price", "Quantity", "Line total"}
	if err := f.SetSheetRow(cartSheet, "A1", &header); err != nil {
		f.Close()
		return nil, err
	}
	_ = f.SetCellStyle(cartSheet, "A1", "E1", bold)

	row := 2
	for _, it := range q.Items {
		line := it.Product.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		cells := []any{
			it.Product.Title,
			it.Product.Category.Name,
			it.Product.Price.InexactFloat64(),
			it.Quantity,
			line.InexactFloat64(),
		}
		if err := f.SetSheetRow(cartSheet, fmt.Sprintf("A%d", row), &cells); err != nil {
			f.Close()
			return nil, err
		}
		row++
	}

	row++
	for _, t := range []struct {
		label string
		value float64
	}{
		{"Subtotal", q.Subtotal.InexactFloat64()},
		{"Shipping", q.Shipping.InexactFloat64()},
		{"Tax", q.Tax.InexactFloat64()},
		{"Total", q.Total.InexactFloat64()},
	} {
		label := fmt.Sprintf("D%d", row)
		_ = f.SetCellValue(cartSheet, label, t.label)
		_ = f.SetCellValue(cartSheet, fmt.Sprintf("E%d", row), t.value)
		_ = f.SetCellStyle(cartSheet, label, label, bold)
		row++
	}
	_ = f.SetColWidth(cartSheet, "A", "A", 40)
	_ = f.SetColWidth(cartSheet, "B", "E", 14)
	return f, nil
}
