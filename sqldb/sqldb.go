package sqldb

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type DBer interface {
	CreateTable(t TableData) error
	Insert(t TableData) error
	Close() error
}

type Field struct {
	Title string
	Type  string
}

type TableData struct {
	TableName   string
	ColumnNames []Field
	Args        []interface{}
	DataCount   int
	AutoKey     bool
}

type Sqldb struct {
	options
	db *sql.DB
}

func New(opts ...Option) (*Sqldb, error) {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	d := &Sqldb{options: options}
	if err := d.OpenDB(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Sqldb) OpenDB() error {
	if d.sqlURL == "" {
		return errors.New("empty sql url")
	}
	db, err := sql.Open("sqlite", d.sqlURL)
	if err != nil {
		return err
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}
	d.db = db
	return nil
}

func (d *Sqldb) CreateTable(t TableData) error {
	if len(t.ColumnNames) == 0 {
		return errors.New("column can not be empty")
	}
	sql := `CREATE TABLE IF NOT EXISTS ` + quote(t.TableName) + " ("
	if t.AutoKey {
		sql += `id INTEGER PRIMARY KEY AUTOINCREMENT,`
	}
	cols := make([]string, 0, len(t.ColumnNames))
	for _, c := range t.ColumnNames {
		cols = append(cols, quote(c.Title)+" "+c.Type)
	}
	sql += strings.Join(cols, ",") + `);`

	d.logger.Debug("create table", zap.String("sql", sql))
	_, err := d.db.Exec(sql)
	return err
}

func (d *Sqldb) Insert(t TableData) error {
	if len(t.ColumnNames) == 0 {
		return errors.New("empty column")
	}
	if t.DataCount == 0 {
		return nil
	}
	if len(t.Args) != t.DataCount*len(t.ColumnNames) {
		return fmt.Errorf("insert %s: %d args for %d rows of %d columns", t.TableName, len(t.Args), t.DataCount, len(t.ColumnNames))
	}

	cols := make([]string, 0, len(t.ColumnNames))
	for _, c := range t.ColumnNames {
		cols = append(cols, quote(c.Title))
	}
	row := "(" + strings.TrimSuffix(strings.Repeat("?,", len(t.ColumnNames)), ",") + ")"
	rows := strings.TrimSuffix(strings.Repeat(row+",", t.DataCount), ",")

	sql := `INSERT INTO ` + quote(t.TableName) + "(" + strings.Join(cols, ",") + `) VALUES ` + rows + ";"
	d.logger.Debug("insert table", zap.String("sql", sql))
	_, err := d.db.Exec(sql, t.Args...)
	return err
}

// Query exposes the handle for readers of the stored records.
func (d *Sqldb) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return d.db.Query(query, args...)
}

func (d *Sqldb) Close() error {
	return d.db.Close()
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
