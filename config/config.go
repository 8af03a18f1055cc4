// Package config loads FlexFlowConfig, the set of compile/run-time options
// spec.md §6 names (SPEC_FULL.md §10.3), the way the teacher's closest
// analogue (`perf-analysis`'s pkg/config) loads its own Config: registered
// viper defaults, then a single viper.Unmarshal into a mapstructure-tagged
// struct.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Byte-size constants used by the workspace/segment defaults below.
const (
	gib = 1 << 30
	mib = 1 << 20
)

// FlexFlowConfig is every option spec.md §6 recognizes. Several fields
// (DatasetPath, SubstitutionJSONPath, PythonDataLoaderType, ...) are not
// consumed by this core at all -- they are parsed and kept on the
// FlexFlowConfig value; the Model carries no copy of them (SPEC_FULL.md
// §10.3).
type FlexFlowConfig struct {
	Epochs         int     `mapstructure:"epochs"`
	BatchSize      int     `mapstructure:"batchSize"`
	Profiling      bool    `mapstructure:"profiling"`
	LearningRate   float64 `mapstructure:"learningRate"`
	WeightDecay    float64 `mapstructure:"weightDecay"`
	WorkSpaceSize  int64   `mapstructure:"workSpaceSize"`
	NumNodes       int     `mapstructure:"numNodes"`
	WorkersPerNode int     `mapstructure:"workersPerNode"`
	CPUsPerNode    int     `mapstructure:"cpusPerNode"`

	SimulatorWorkSpaceSize      int64   `mapstructure:"simulator_work_space_size"`
	SearchBudget                int64   `mapstructure:"search_budget"`
	SearchAlpha                 float64 `mapstructure:"search_alpha"`
	SearchOverlapBackwardUpdate bool    `mapstructure:"search_overlap_backward_update"`

	ComputationMode string `mapstructure:"computationMode"`

	OnlyDataParallel           bool `mapstructure:"only_data_parallel"`
	EnableSampleParallel       bool `mapstructure:"enable_sample_parallel"`
	EnableParameterParallel    bool `mapstructure:"enable_parameter_parallel"`
	EnableAttributeParallel    bool `mapstructure:"enable_attribute_parallel"`
	EnableInplaceOptimizations bool `mapstructure:"enable_inplace_optimizations"`
	AllowTensorOpMathConversion bool `mapstructure:"allow_tensor_op_math_conversion"`
	PerformFusion              bool `mapstructure:"perform_fusion"`
	EnableControlReplication   bool `mapstructure:"enable_control_replication"`

	BaseOptimizeThreshold int `mapstructure:"base_optimize_threshold"`
	MachineModelVersion   int `mapstructure:"machine_model_version"`
	SimulatorSegmentSize  int64 `mapstructure:"simulator_segment_size"`
	SimulatorMaxNumSegments int `mapstructure:"simulator_max_num_segments"`
	PythonDataLoaderType  int `mapstructure:"python_data_loader_type"`

	MachineModelFile                  string `mapstructure:"machine_model_file"`
	ImportStrategyFile                string `mapstructure:"import_strategy_file"`
	ExportStrategyFile                string `mapstructure:"export_strategy_file"`
	ExportStrategyTaskGraphFile        string `mapstructure:"export_strategy_task_graph_file"`
	ExportStrategyComputationGraphFile string `mapstructure:"export_strategy_computation_graph_file"`
	IncludeCostsDotGraph               bool   `mapstructure:"include_costs_dot_graph"`

	DatasetPath          string `mapstructure:"dataset_path"`
	SubstitutionJSONPath string `mapstructure:"substitution_json_path"`
	SyntheticInput       bool   `mapstructure:"syntheticInput"`
}

// Load reads FlexFlowConfig from configPath (or the standard search path if
// configPath is empty), falling back to the defaults below when no config
// file is present.
func Load(configPath string) (*FlexFlowConfig, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("flexflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/flexflow")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file: defaults stand.
		} else if os.IsNotExist(err) {
			// Config file explicitly named but missing: defaults stand.
		} else {
			return nil, fmt.Errorf("flexflow: failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg FlexFlowConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("flexflow: failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("flexflow: config validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadFromReader loads FlexFlowConfig from an in-memory buffer, used by
// tests that don't want to touch the filesystem.
func LoadFromReader(configType string, content []byte) (*FlexFlowConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("flexflow: failed to read config: %w", err)
	}
	var cfg FlexFlowConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("flexflow: failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("flexflow: config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the handful of invariants that keep downstream components
// (C5/C7/C8) from having to re-derive them: positive epoch/batch counts and
// a non-negative search budget.
func (c *FlexFlowConfig) Validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batchSize must be positive, got %d", c.BatchSize)
	}
	if c.SearchBudget < 0 {
		return fmt.Errorf("search_budget must be >= 0 (0 means unset), got %d", c.SearchBudget)
	}
	if c.SearchAlpha <= 0 {
		return fmt.Errorf("search_alpha must be positive, got %f", c.SearchAlpha)
	}
	return nil
}

// setDefaults registers spec.md §6's default values. NumNodes' default of
// 0 is the "auto from machine" sentinel: the caller resolves it against
// the actual cluster size rather than this package guessing at one.
func setDefaults(v *viper.Viper) {
	v.SetDefault("epochs", 1)
	v.SetDefault("batchSize", 64)
	v.SetDefault("profiling", false)
	v.SetDefault("learningRate", 0.01)
	v.SetDefault("weightDecay", 1e-4)
	v.SetDefault("workSpaceSize", int64(gib))
	v.SetDefault("numNodes", 0)
	v.SetDefault("workersPerNode", 0)
	v.SetDefault("cpusPerNode", 0)

	v.SetDefault("simulator_work_space_size", int64(2*gib))
	v.SetDefault("search_budget", int64(0))
	v.SetDefault("search_alpha", 1.2)
	v.SetDefault("search_overlap_backward_update", false)

	v.SetDefault("computationMode", "training")

	v.SetDefault("only_data_parallel", false)
	v.SetDefault("enable_sample_parallel", true)
	v.SetDefault("enable_parameter_parallel", true)
	v.SetDefault("enable_attribute_parallel", true)
	v.SetDefault("enable_inplace_optimizations", false)
	v.SetDefault("allow_tensor_op_math_conversion", false)
	v.SetDefault("perform_fusion", false)
	v.SetDefault("enable_control_replication", true)

	v.SetDefault("base_optimize_threshold", 10)
	v.SetDefault("machine_model_version", 0)
	v.SetDefault("simulator_segment_size", int64(16*mib))
	v.SetDefault("simulator_max_num_segments", 1)
	v.SetDefault("python_data_loader_type", 2)

	v.SetDefault("machine_model_file", "")
	v.SetDefault("import_strategy_file", "")
	v.SetDefault("export_strategy_file", "")
	v.SetDefault("export_strategy_task_graph_file", "")
	v.SetDefault("export_strategy_computation_graph_file", "")
	v.SetDefault("include_costs_dot_graph", false)

	v.SetDefault("dataset_path", "")
	v.SetDefault("substitution_json_path", "")
	v.SetDefault("syntheticInput", false)
}
