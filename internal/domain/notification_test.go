package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotification(t *testing.T) {
	payload := []byte(`{
		"specversion": "1.0",
		"type": "nl.knmi.dataplatform.file.created.v1",
		"data": {
			"datasetName": "10-minute-in-situ-meteorological-observations",
			"filename": "KMDS__OPER_P___10M_OBS_L2_202401151030.nc",
			"url": "https://example.test/download"
		}
	}`)

	n, err := ParseNotification(payload)
	require.NoError(t, err)
	assert.Equal(t, DatasetObservations, n.Dataset)
	assert.Equal(t, "KMDS__OPER_P___10M_OBS_L2_202401151030.nc", n.Filename)
}

func TestParseNotificationRejectsMissingDataset(t *testing.T) {
	_, err := ParseNotification([]byte(`{"data":{"filename":"x.nc"}}`))
	require.Error(t, err)
}

func TestParseNotificationRejectsInvalidJSON(t *testing.T) {
	_, err := ParseNotification([]byte("not-json{{{"))
	require.Error(t, err)
}

func TestFilenamePatternParse(t *testing.T) {
	tests := []struct {
		name     string
		pattern  FilenamePattern
		filename string
		want     time.Time
		wantErr  bool
	}{
		{
			name:     "observation file",
			pattern:  ObservationFile,
			filename: "KMDS__OPER_P___10M_OBS_L2_202401151030.nc",
			want:     time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "radar forecast file",
			pattern:  RadarForecastFile,
			filename: "RAD_NL25_RAC_FM_202401151025.h5",
			want:     time.Date(2024, 1, 15, 10, 25, 0, 0, time.UTC),
		},
		{
			name:     "wrong prefix",
			pattern:  ObservationFile,
			filename: "RAD_NL25_RAC_FM_202401151025.h5",
			wantErr:  true,
		},
		{
			name:     "garbage timestamp",
			pattern:  ObservationFile,
			filename: "KMDS__OPER_P___10M_OBS_L2_notatime.nc",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.pattern.Parse(tt.filename)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}
