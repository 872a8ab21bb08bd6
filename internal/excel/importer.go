// Package excel imports lesson content from spreadsheets into the item table.
package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/example/studyflow/internal/apperr"
	"github.com/example/studyflow/internal/lessons"
	"github.com/example/studyflow/pkg/models"
)

// ItemStore persists learning items
type ItemStore interface {
	Get(ctx context.Context, id string) (*models.LearningItem, error)
	Upsert(ctx context.Context, item models.LearningItem) error
}

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath  string // Path to the Excel or CSV file
	SheetName string // Sheet to import; the first sheet when empty
	StartRow  int    // The row to start importing from (1-based index)

	IDColumn       string
	ModuleColumn   string
	LessonColumn   string
	PositionColumn string
	PromptColumn   string
	AnswerColumn   string

	// Catalog, when set, rejects rows whose lesson is unknown or belongs to
	// another module.
	Catalog *lessons.Catalog
}

// DefaultImportConfig returns the default import configuration: columns A-F
// hold item_id, module, lesson_id, position, prompt and answer, and the first
// row is a header.
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		StartRow:       2,
		IDColumn:       "A",
		ModuleColumn:   "B",
		LessonColumn:   "C",
		PositionColumn: "D",
		PromptColumn:   "E",
		AnswerColumn:   "F",
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Created        int
	Updated        int
	Errors         []string
}

// ImportItems imports items from an .xlsx or .csv file. Row-level problems
// are collected in the result; only unreadable files fail the import.
func ImportItems(ctx context.Context, store ItemStore, cfg ImportConfig) (*ImportResult, error) {
	cols, err := cfg.columns()
	if err != nil {
		return nil, err
	}

	var rows [][]string
	if strings.EqualFold(filepath.Ext(cfg.FilePath), ".csv") {
		rows, err = readCSV(cfg.FilePath)
	} else {
		rows, err = readExcel(cfg.FilePath, cfg.SheetName)
	}
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Errors: make([]string, 0)}
	for i, row := range rows {
		rowNum := i + 1
		if rowNum < cfg.StartRow || blank(row) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.TotalProcessed++

		item, err := cols.parse(row)
		if err == nil {
			err = cfg.checkLesson(item)
		}
		if err == nil {
			err = importItem(ctx, store, item, result)
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
		}
	}
	return result, nil
}

func (cfg ImportConfig) checkLesson(item models.LearningItem) error {
	if cfg.Catalog == nil {
		return nil
	}
	lesson, err := cfg.Catalog.Get(item.LessonID)
	if err != nil {
		return err
	}
	if lesson.Module != item.Module {
		return errors.Errorf("lesson %d is a %s lesson, item is %s", lesson.ID, lesson.Module, item.Module)
	}
	return nil
}

// importItem upserts item and counts it as created or updated
func importItem(ctx context.Context, store ItemStore, item models.LearningItem, result *ImportResult) error {
	_, err := store.Get(ctx, item.ID)
	exists := err == nil
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if err := store.Upsert(ctx, item); err != nil {
		return err
	}
	if exists {
		result.Updated++
	} else {
		result.Created++
	}
	return nil
}

// columnSet holds zero-based column indexes
type columnSet struct {
	id, module, lesson, position, prompt, answer int
}

func (cfg ImportConfig) columns() (columnSet, error) {
	var c columnSet
	for _, col := range []struct {
		name string
		dst  *int
	}{
		{cfg.IDColumn, &c.id},
		{cfg.ModuleColumn, &c.module},
		{cfg.LessonColumn, &c.lesson},
		{cfg.PositionColumn, &c.position},
		{cfg.PromptColumn, &c.prompt},
		{cfg.AnswerColumn, &c.answer},
	} {
		n, err := excelize.ColumnNameToNumber(col.name)
		if err != nil {
			return columnSet{}, apperr.InvalidInput("ImportItems", "bad column %q: %v", col.name, err)
		}
		*col.dst = n - 1
	}
	return c, nil
}

func (c columnSet) parse(row []string) (models.LearningItem, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	item := models.LearningItem{
		ID:     cell(c.id),
		Module: models.ModuleType(strings.ToLower(cell(c.module))),
		Prompt: cell(c.prompt),
		Answer: cell(c.answer),
	}
	if item.ID == "" {
		return item, errors.New("item id cannot be empty")
	}
	if !item.Module.IsValid() {
		return item, errors.Errorf("unknown module %q", cell(c.module))
	}
	if item.Prompt == "" {
		return item, errors.New("prompt cannot be empty")
	}

	lessonID, err := strconv.Atoi(cell(c.lesson))
	if err != nil || lessonID <= 0 {
		return item, errors.Errorf("invalid lesson id %q", cell(c.lesson))
	}
	item.LessonID = lessonID

	if p := cell(c.position); p != "" {
		if item.Position, err = strconv.Atoi(p); err != nil {
			return item, errors.Errorf("invalid position %q", p)
		}
	}
	return item, nil
}

func readExcel(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open Excel file")
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get rows of sheet %q", sheet)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open CSV file")
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "error reading CSV")
		}
		rows = append(rows, row)
	}
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
