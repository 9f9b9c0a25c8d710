package reports

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportStockValueExcel renders the stock value report as an XLSX workbook.
// Caller owns closing the file.
func ExportStockValueExcel(ctx context.Context) (*excelize.File, error) {

	data, err := GetStockValueReport(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := "StockValue"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{"Sku", "Product", "Size", "Color", "Stock", "UnitCost", "UnitPrice", "CostValue", "RetailValue"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for i, d := range data {
		row := i + 2
		f.SetCellValue(sheet, "A"+fmt.Sprint(row), d.Sku)
		f.SetCellValue(sheet, "B"+fmt.Sprint(row), d.ProductName)
		f.SetCellValue(sheet, "C"+fmt.Sprint(row), d.Size)
		f.SetCellValue(sheet, "D"+fmt.Sprint(row), d.Color)
		f.SetCellValue(sheet, "E"+fmt.Sprint(row), d.TotalStock)
		f.SetCellValue(sheet, "F"+fmt.Sprint(row), d.CostPerUnit.InexactFloat64())
		f.SetCellValue(sheet, "G"+fmt.Sprint(row), d.PricePerUnit.InexactFloat64())
		f.SetCellValue(sheet, "H"+fmt.Sprint(row), d.CostValue.InexactFloat64())
		f.SetCellValue(sheet, "I"+fmt.Sprint(row), d.RetailValue.InexactFloat64())
	}

	return f, nil
}

// ExportLocationInventoryExcel renders the shelf walk sheet for one location,
// or the whole store when locationId is nil.
func ExportLocationInventoryExcel(ctx context.Context, locationId *int) (*excelize.File, error) {

	data, err := GetLocationInventoryReport(ctx, locationId)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := "Inventory"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{"Location", "Type", "Section", "Shelf", "Sku", "Product", "Size", "Color", "Quantity", "Reserved"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for i, d := range data {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+row, d.LocationName)
		f.SetCellValue(sheet, "B"+row, d.LocationType)
		f.SetCellValue(sheet, "C"+row, d.Section)
		f.SetCellValue(sheet, "D"+row, d.ShelfCode)
		f.SetCellValue(sheet, "E"+row, d.Sku)
		f.SetCellValue(sheet, "F"+row, d.ProductName)
		f.SetCellValue(sheet, "G"+row, d.Size)
		f.SetCellValue(sheet, "H"+row, d.Color)
		f.SetCellValue(sheet, "I"+row, d.Quantity)
		f.SetCellValue(sheet, "J"+row, d.ReservedQuantity)
	}

	return f, nil
}
