package machineview_test

import (
	"testing"

	"github.com/williamberman/FlexFlow/types/machineview"
)

func TestMachineView_DecomposeAndFlatten(t *testing.T) {
	v := machineview.Make(4, 2)
	if v.NumDevices() != 8 {
		t.Fatalf("NumDevices() = %d, want 8", v.NumDevices())
	}
	for flat := 0; flat < v.NumDevices(); flat++ {
		indices := v.DecomposeIndex(flat)
		if len(indices) != 2 {
			t.Fatalf("DecomposeIndex(%d) len = %d, want 2", flat, len(indices))
		}
		if got := v.FlattenIndex(indices); got != flat {
			t.Errorf("FlattenIndex(DecomposeIndex(%d)) = %d, want %d", flat, got, flat)
		}
	}
}

func TestMachineView_Equal(t *testing.T) {
	a := machineview.Make(2, 2)
	b := machineview.Make(2, 2)
	c := machineview.MakeAt(4, 2, 2)
	if !a.Equal(b) {
		t.Errorf("expected a.Equal(b)")
	}
	if a.Equal(c) {
		t.Errorf("expected !a.Equal(c), views start at different devices")
	}
}

func TestMachineView_Validate(t *testing.T) {
	tests := []struct {
		name         string
		view         machineview.MachineView
		totalDevices int
		wantErr      bool
	}{
		{"fits", machineview.Make(2, 2), 4, false},
		{"too many devices", machineview.Make(4, 4), 8, true},
		{"no axes", machineview.MachineView{}, 8, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.view.Validate(tt.totalDevices)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParallelConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     machineview.ParallelConfig
		wantErr bool
	}{
		{"valid", machineview.MakeConfig([]int{2, 2}, []int{0, 1, 2, 3}), false},
		{"mismatched device count", machineview.ParallelConfig{Dims: []int{2, 2}, DeviceIDs: []int{0, 1, 2}}, true},
		{"duplicate device id", machineview.ParallelConfig{Dims: []int{2}, DeviceIDs: []int{0, 0}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
