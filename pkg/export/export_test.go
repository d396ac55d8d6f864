package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"student_name", "class_type", "schedule", "time"},
		Rows: []map[string]string{
			{"student_name": "Alice", "class_type": "Regular", "schedule": "2024-01-10", "time": "14:00"},
			{"student_name": "Bob", "class_type": "Group", "schedule": "2024-01-10", "time": "15:00"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "student_name,class_type,schedule,time\nAlice,Regular,2024-01-10,14:00\nBob,Group,2024-01-10,15:00\n", string(out))
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
	_, err = NewXLSXExporter("").Render(Dataset{})
	assert.Error(t, err)
}

func TestXLSXExporterRender(t *testing.T) {
	out, err := NewXLSXExporter("Classes").Render(sampleDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Classes")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"student_name", "class_type", "schedule", "time"}, rows[0])
	assert.Equal(t, []string{"Bob", "Group", "2024-01-10", "15:00"}, rows[2])
}

func TestForFormat(t *testing.T) {
	r, err := ForFormat("xlsx")
	require.NoError(t, err)
	assert.Equal(t, "xlsx", r.Extension())

	r, err = ForFormat("")
	require.NoError(t, err)
	assert.Equal(t, "csv", r.Extension())

	_, err = ForFormat("pdf")
	assert.Error(t, err)
}
