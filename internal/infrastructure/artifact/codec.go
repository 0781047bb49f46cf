package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/martijn/vaultkeeper/internal/core/domain"
)

// timeLayout matches the text form the sqlite driver writes for time values
// when opened with _time_format=sqlite
const timeLayout = "2006-01-02 15:04:05.999999999-07:00"

const blobKey = "$b64"

type document struct {
	FormatVersion int             `json:"format_version"`
	BackupID      string          `json:"backup_id"`
	Type          string          `json:"type"`
	CreatedAt     time.Time       `json:"created_at"`
	FromBackupID  string          `json:"from_backup_id,omitempty"`
	Since         *time.Time      `json:"since,omitempty"`
	Skipped       []string        `json:"skipped,omitempty"`
	Tables        []tableDocument `json:"tables"`
}

type tableDocument struct {
	Name    string          `json:"name"`
	Schema  string          `json:"schema,omitempty"`
	Indexes []string        `json:"indexes,omitempty"`
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// Encode serializes a snapshot into the artifact document
func Encode(snapshot *domain.Snapshot) ([]byte, error) {
	doc := document{
		FormatVersion: snapshot.FormatVersion,
		BackupID:      snapshot.BackupID,
		Type:          string(snapshot.Type),
		CreatedAt:     snapshot.CreatedAt,
		FromBackupID:  snapshot.FromBackupID,
		Since:         snapshot.Since,
		Skipped:       snapshot.Skipped,
		Tables:        make([]tableDocument, 0, len(snapshot.Tables)),
	}

	for _, t := range snapshot.Tables {
		rows := make([][]interface{}, len(t.Rows))
		for i, row := range t.Rows {
			cells := make([]interface{}, len(row))
			for j, value := range row {
				cell, err := encodeCell(value)
				if err != nil {
					return nil, fmt.Errorf("table %s row %d column %d: %w", t.Name, i, j, err)
				}
				cells[j] = cell
			}
			rows[i] = cells
		}
		doc.Tables = append(doc.Tables, tableDocument{
			Name:    t.Name,
			Schema:  t.Schema,
			Indexes: t.Indexes,
			Columns: t.Columns,
			Rows:    rows,
		})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

func encodeCell(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil, string, bool:
		return v, nil
	case int64:
		return json.Number(strconv.FormatInt(v, 10)), nil
	case int:
		return json.Number(strconv.Itoa(v)), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("cannot encode non-finite number %v", v)
		}
		// Keep a fraction or exponent so the value decodes as a float again
		s := strconv.FormatFloat(v, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return json.Number(s), nil
	case []byte:
		return map[string]string{blobKey: base64.StdEncoding.EncodeToString(v)}, nil
	case time.Time:
		return v.Format(timeLayout), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}
}

// Decode parses and validates an artifact document
func Decode(data []byte) (*domain.Snapshot, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var doc document
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	if doc.FormatVersion < 1 || doc.FormatVersion > domain.SnapshotFormatVersion {
		return nil, fmt.Errorf("unsupported snapshot format version %d", doc.FormatVersion)
	}
	backupType, err := domain.ParseBackupType(doc.Type)
	if err != nil {
		return nil, err
	}

	snapshot := &domain.Snapshot{
		FormatVersion: doc.FormatVersion,
		BackupID:      doc.BackupID,
		Type:          backupType,
		CreatedAt:     doc.CreatedAt,
		FromBackupID:  doc.FromBackupID,
		Since:         doc.Since,
		Skipped:       doc.Skipped,
		Tables:        make([]domain.TableSnapshot, 0, len(doc.Tables)),
	}

	for _, t := range doc.Tables {
		if t.Name == "" {
			return nil, fmt.Errorf("snapshot contains a table without a name")
		}
		rows := make([][]interface{}, len(t.Rows))
		for i, row := range t.Rows {
			if len(row) != len(t.Columns) {
				return nil, fmt.Errorf("table %s row %d has %d values, expected %d", t.Name, i, len(row), len(t.Columns))
			}
			cells := make([]interface{}, len(row))
			for j, raw := range row {
				cell, err := decodeCell(raw)
				if err != nil {
					return nil, fmt.Errorf("table %s row %d column %d: %w", t.Name, i, j, err)
				}
				cells[j] = cell
			}
			rows[i] = cells
		}
		snapshot.Tables = append(snapshot.Tables, domain.TableSnapshot{
			Name:    t.Name,
			Schema:  t.Schema,
			Indexes: t.Indexes,
			Columns: t.Columns,
			Rows:    rows,
		})
	}

	return snapshot, nil
}

func decodeCell(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil, string, bool:
		return v, nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", v.String())
		}
		return f, nil
	case map[string]interface{}:
		encoded, ok := v[blobKey].(string)
		if !ok || len(v) != 1 {
			return nil, fmt.Errorf("unexpected object value")
		}
		blob, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid blob value: %w", err)
		}
		return blob, nil
	default:
		return nil, fmt.Errorf("unexpected value type %T", value)
	}
}

// Checksum is the hex SHA-256 of the stored artifact bytes
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
