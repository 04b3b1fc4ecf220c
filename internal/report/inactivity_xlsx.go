package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"platewatch/internal/domain/radar"
)

const sheetName = "Inactivity"

var headers = []string{
	"Camera", "Company", "Date", "Inactive Hours",
	">1h", ">3h", ">6h", ">12h", "Full Day",
	"Reads", "Avg Latency (s)", "Median Latency (s)",
}

// BuildInactivityWorkbook renders camera-day inactivity rows into an XLSX
// workbook for the operations teams that consume the daily report.
func BuildInactivityWorkbook(records []radar.InactivityRecord) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(sheetName); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, err
		}
	}

	for i, rec := range records {
		values := []interface{}{
			rec.CameraKey,
			rec.Company,
			rec.Date.Format("2006-01-02"),
			rec.InactiveHours,
			rec.Over1h,
			rec.Over3h,
			rec.Over6h,
			rec.Over12h,
			rec.FullDay,
			rec.ReadCount,
			rec.AvgLatencyS,
			rec.MedianLatencyS,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("write row %d: %w", i+2, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return &buf, nil
}
