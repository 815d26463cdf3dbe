package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"coreml", Config{Backend: CoreMLBackend}, false},
		{"openvino", Config{Backend: OpenVINOBackend, IntraOpThreads: 2}, false},
		{"missing backend", Config{}, true},
		{"unknown backend", Config{Backend: "tpu"}, true},
		{"negative threads", Config{Backend: CPUBackend, InterOpThreads: -1}, true},
		{"openvino fp16", Config{Backend: OpenVINOBackend, OpenVINO: OpenVINOOptions{Precision: PrecisionFP16}}, false},
		{"openvino int8", Config{Backend: OpenVINOBackend, OpenVINO: OpenVINOOptions{Precision: "INT8"}}, true},
		{"openvino negative threads", Config{Backend: OpenVINOBackend, OpenVINO: OpenVINOOptions{NumOfThreads: -2}}, true},
		{"precision ignored off openvino", Config{Backend: CPUBackend, OpenVINO: OpenVINOOptions{Precision: "INT8"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_DNN(t *testing.T) {
	backend, target, err := DefaultConfig().DNN()
	require.NoError(t, err)
	assert.Equal(t, gocv.NetBackendOpenCV, backend)
	assert.Equal(t, gocv.NetTargetCPU, target)

	backend, _, err = Config{Backend: OpenVINOBackend}.DNN()
	require.NoError(t, err)
	assert.Equal(t, gocv.NetBackendOpenVINO, backend)

	_, _, err = Config{Backend: CoreMLBackend}.DNN()
	assert.Error(t, err)
}

func TestOpenVINOOptions_Map(t *testing.T) {
	assert.Equal(t, map[string]string{
		"device_id":      "0",
		"device_type":    "CPU",
		"precision":      "FP32",
		"num_of_threads": "4",
	}, DefaultOpenVINOOptions().Map())

	assert.Equal(t, map[string]string{"device_type": "GPU"}, OpenVINOOptions{DeviceType: "GPU"}.Map())
}

func TestSharedLibPath(t *testing.T) {
	t.Setenv(LibraryPathEnv, "/opt/onnxruntime/lib/libonnxruntime.so")
	assert.Equal(t, "/opt/onnxruntime/lib/libonnxruntime.so", GetSharedLibPath())
	assert.Equal(t, "/opt/onnxruntime/lib/libonnxruntime.so", DefaultConfig().SharedLibPath())
	assert.Equal(t, "/tmp/ort.so", Config{LibraryPath: "/tmp/ort.so"}.SharedLibPath())
}
