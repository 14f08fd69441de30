package supply

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/estimap/recreation/internal/engine"
)

var (
	supplyHeader = []string{"base", "base_label", "cover", "cover_label", "area", "count", "percents"}
	useHeader    = []string{"category", "label", "value"}
)

// WriteSupplyCSV writes the supply table with areas in unit.
func WriteSupplyCSV(w io.Writer, rows []SupplyRow, unit string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(supplyHeader); err != nil {
		return eris.Wrap(err, "supply: write header")
	}
	for _, r := range rows {
		area, err := r.In(unit)
		if err != nil {
			return err
		}
		rec := []string{
			strconv.Itoa(r.Base),
			r.BaseLabel,
			strconv.Itoa(r.Cover),
			r.CoverLabel,
			engine.FormatFloat(area),
			strconv.FormatInt(r.Count, 10),
			engine.FormatFloat(r.Percent),
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "supply: write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "supply: flush")
	}
	return nil
}

// WriteUseCSV writes the use table.
func WriteUseCSV(w io.Writer, rows []UseRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(useHeader); err != nil {
		return eris.Wrap(err, "supply: write header")
	}
	for _, r := range rows {
		if err := cw.Write([]string{strconv.Itoa(r.Category), r.Label, engine.FormatFloat(r.Value)}); err != nil {
			return eris.Wrap(err, "supply: write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "supply: flush")
	}
	return nil
}

// WriteCSVFiles writes the supply and use tables to their files. Empty
// paths are skipped.
func WriteCSVFiles(t Tables, supplyPath, usePath, unit string) error {
	if supplyPath != "" {
		if err := writeFile(supplyPath, func(w io.Writer) error { return WriteSupplyCSV(w, t.Supply, unit) }); err != nil {
			return err
		}
	}
	if usePath != "" {
		if err := writeFile(usePath, func(w io.Writer) error { return WriteUseCSV(w, t.Use) }); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "supply: create %s", path)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "supply: close %s", path)
	}
	return nil
}

// Print writes both tables to w in CSV form.
func Print(w io.Writer, t Tables, unit string) error {
	if err := WriteSupplyCSV(w, t.Supply, unit); err != nil {
		return err
	}
	if len(t.Use) == 0 {
		return nil
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return eris.Wrap(err, "supply: print")
	}
	return WriteUseCSV(w, t.Use)
}

// WriteWorkbook writes both tables to an XLSX workbook with a "supply"
// sheet (one area column per unit) and a "use" sheet.
func WriteWorkbook(path string, t Tables, units []string) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("supply")
	if err != nil {
		return eris.Wrap(err, "supply: add supply sheet")
	}
	header := sheet.AddRow()
	for _, h := range []string{"base", "base_label", "cover", "cover_label"} {
		header.AddCell().SetString(h)
	}
	for _, u := range units {
		header.AddCell().SetString("area_" + u)
	}
	header.AddCell().SetString("count")
	header.AddCell().SetString("percents")

	for _, r := range t.Supply {
		row := sheet.AddRow()
		row.AddCell().SetInt(r.Base)
		row.AddCell().SetString(r.BaseLabel)
		row.AddCell().SetInt(r.Cover)
		row.AddCell().SetString(r.CoverLabel)
		for _, u := range units {
			v, err := r.In(u)
			if err != nil {
				return err
			}
			row.AddCell().SetFloat(v)
		}
		row.AddCell().SetInt64(r.Count)
		row.AddCell().SetFloat(r.Percent)
	}

	use, err := f.AddSheet("use")
	if err != nil {
		return eris.Wrap(err, "supply: add use sheet")
	}
	header = use.AddRow()
	for _, h := range useHeader {
		header.AddCell().SetString(h)
	}
	for _, r := range t.Use {
		row := use.AddRow()
		row.AddCell().SetInt(r.Category)
		row.AddCell().SetString(r.Label)
		row.AddCell().SetFloat(r.Value)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "supply: save %s", path)
	}
	return nil
}
