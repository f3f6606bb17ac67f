package dataflow

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/brownsys/k9db/dataflow/record"
)

// stateFileName is the schema catalog persisted in the engine's data
// directory. Only table schemas are durable; materialized state and flow
// definitions are rebuilt from the base tables at startup.
const stateFileName = ".dataflow.state"

// Save writes the registered table schemas to the state file in dir. The
// format is line-oriented: table name, then one name line and one type-code
// line per column, a blank line, then the key count followed by the key
// indices on one line. Tables are separated by a blank line.
func (e *Engine) Save(dir string) error {
	path := filepath.Join(dir, stateFileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating state file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	e.mu.RLock()
	defer e.mu.RUnlock()
	for name, schema := range e.schemas {
		fmt.Fprintf(w, "%s\n", name)
		for i := 0; i < schema.Size(); i++ {
			col := record.ColumnID(i)
			fmt.Fprintf(w, "%s\n%d\n", schema.NameOf(col), uint8(schema.TypeOf(col)))
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%d", len(schema.Keys()))
		for _, k := range schema.Keys() {
			fmt.Fprintf(w, " %d", k)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}

// Load restores table schemas from the state file in dir, reconstructing
// equivalent schema descriptors. A missing state file means a fresh engine
// and is not an error.
func (e *Engine) Load(dir string) error {
	path := filepath.Join(dir, stateFileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening state file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	next := func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		return scanner.Text(), true
	}

	for {
		table, ok := next()
		if !ok || table == "" {
			break
		}
		var names []string
		var types []record.Type
		for {
			name, ok := next()
			if !ok {
				return fmt.Errorf("state file truncated in table %q", table)
			}
			if name == "" {
				break
			}
			codeLine, ok := next()
			if !ok {
				return fmt.Errorf("state file truncated after column %q", name)
			}
			code, err := strconv.ParseUint(codeLine, 10, 8)
			if err != nil {
				return fmt.Errorf("bad type code %q for column %q: %w", codeLine, name, err)
			}
			names = append(names, name)
			types = append(types, record.Type(code))
		}

		keyLine, ok := next()
		if !ok {
			return fmt.Errorf("state file truncated before keys of table %q", table)
		}
		fields := strings.Fields(keyLine)
		if len(fields) == 0 {
			return fmt.Errorf("missing key indices for table %q", table)
		}
		count, err := strconv.Atoi(fields[0])
		if err != nil || len(fields) != count+1 {
			return fmt.Errorf("bad key line %q for table %q", keyLine, table)
		}
		keys := make([]record.ColumnID, 0, count)
		for _, field := range fields[1:] {
			k, err := strconv.ParseUint(field, 10, 32)
			if err != nil {
				return fmt.Errorf("bad key index %q for table %q: %w", field, table, err)
			}
			keys = append(keys, record.ColumnID(k))
		}

		e.AddTableSchema(table, record.NewSchema(names, types, keys))

		// Blank separator between tables; EOF ends the catalog.
		if _, ok := next(); !ok {
			break
		}
	}
	return scanner.Err()
}
