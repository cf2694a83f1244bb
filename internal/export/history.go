// Package export writes a user's booking history to an Excel workbook.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"bengkelku/internal/clock"
	"bengkelku/internal/config"
	"bengkelku/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	historySheet = "Riwayat"
	summarySheet = "Ringkasan"
)

// HistorySource is the part of the booking engine the exporter reads.
type HistorySource interface {
	EnrichedBookings(userID string) []models.EnrichedBooking
	BookingStats(userID string) models.BookingStats
}

type Exporter struct {
	bookings HistorySource
	config   config.ExportConfig
	clock    clock.Clock
	logger   *zerolog.Logger
}

func NewExporter(bookings HistorySource, cfg config.ExportConfig, clk clock.Clock, logger *zerolog.Logger) *Exporter {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Exporter{bookings: bookings, config: cfg, clock: clk, logger: logger}
}

// ExportHistory writes the bookings of userID (empty means the session user) and their
// summary to a new .xlsx file and returns its path.
func (e *Exporter) ExportHistory(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.config.Path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	history := e.bookings.EnrichedBookings(userID)
	stats := e.bookings.BookingStats(userID)

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(historySheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := writeHistory(f, history); err != nil {
		return "", err
	}
	if err := writeSummary(f, stats); err != nil {
		return "", err
	}

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("riwayat_booking_%s.xlsx", e.clock.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.config.Path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("bookings", len(history)).Msg("Booking history exported")
	return filePath, nil
}

func writeHistory(f *excelize.File, history []models.EnrichedBooking) error {
	headers := []string{
		"ID Booking", "Tanggal", "Jam", "Kendaraan", "Plat Nomor", "Layanan",
		"Status", "Total Harga", "Poin", "Catatan",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(historySheet, cell, header)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(historySheet, "A1", lastHeader, headerStyle)

	styles := make(map[models.BookingStatus]int)
	for i, eb := range history {
		row := i + 2
		b := eb.Booking
		_ = f.SetCellValue(historySheet, fmt.Sprintf("A%d", row), b.ID)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("B%d", row), b.BookingDate)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("C%d", row), b.TimeSlot)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("D%d", row), eb.VehicleName)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("E%d", row), eb.VehiclePlateNumber)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("F%d", row), eb.ServiceName)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("G%d", row), b.Status.DisplayName())
		_ = f.SetCellValue(historySheet, fmt.Sprintf("H%d", row), b.TotalPrice)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("I%d", row), b.PointsEarned)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("J%d", row), b.Notes)

		style, ok := styles[b.Status]
		if !ok {
			style, err = f.NewStyle(&excelize.Style{
				Fill: excelize.Fill{Type: "pattern", Color: []string{statusColor(b.Status)}, Pattern: 1},
			})
			if err != nil {
				return fmt.Errorf("error creating style: %w", err)
			}
			styles[b.Status] = style
		}
		cell := fmt.Sprintf("G%d", row)
		_ = f.SetCellStyle(historySheet, cell, cell, style)
	}

	_ = f.SetColWidth(historySheet, "A", "A", 18)
	_ = f.SetColWidth(historySheet, "B", "C", 13)
	_ = f.SetColWidth(historySheet, "D", "F", 20)
	_ = f.SetColWidth(historySheet, "G", "G", 20)
	_ = f.SetColWidth(historySheet, "H", "I", 12)
	_ = f.SetColWidth(historySheet, "J", "J", 45)
	return nil
}

func writeSummary(f *excelize.File, stats models.BookingStats) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	rows := []struct {
		label string
		value int
	}{
		{"Total Booking", stats.TotalBookings},
		{"Selesai", stats.CompletedBookings},
		{"Menunggu Konfirmasi", stats.PendingBookings},
		{"Dikonfirmasi", stats.ConfirmedBookings},
		{"Total Pengeluaran", stats.TotalSpent},
		{"Total Poin", stats.TotalPointsEarned},
	}
	for i, r := range rows {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), r.label)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), r.value)
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 25)
	return nil
}

func statusColor(status models.BookingStatus) string {
	switch status {
	case models.StatusCompleted:
		return "#C6EFCE"
	case models.StatusCancelled:
		return "#FFC7CE"
	case models.StatusPending:
		return "#FFEB9C"
	default:
		return "#FFFFFF"
	}
}
