package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsLLMMessagesSent is base for counter metric for total messages sent to LLM
	StatsLLMMessagesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_messages_sent",
		Help:         "stats_llm_messages_sent provides total messages sent to LLM",
		RequiredTags: []string{"model"},
	}

	StatsLLMBytesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_sent",
		Help:         "stats_llm_bytes_sent provides total bytes sent to LLM",
		RequiredTags: []string{"model"},
	}

	StatsLLMBytesReceived = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_received",
		Help:         "stats_llm_bytes_received provides total bytes received from LLM",
		RequiredTags: []string{"model"},
	}

	StatsLLMInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_input_tokens",
		Help:         "stats_llm_input_tokens provides total input tokens sent to LLM",
		RequiredTags: []string{"model"},
	}

	StatsLLMOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_output_tokens",
		Help:         "stats_llm_output_tokens provides total output tokens received from LLM",
		RequiredTags: []string{"model"},
	}

	StatsLLMTotalTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_total_tokens",
		Help:         "stats_llm_total_tokens provides total tokens sent and received from LLM",
		RequiredTags: []string{"model"},
	}

	StatsLLMEmptyResponses = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_empty_responses",
		Help:         "stats_llm_empty_responses provides total LLM responses without choices",
		RequiredTags: []string{"model"},
	}

	StatsLoopRounds = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_loop_rounds",
		Help:         "stats_loop_rounds provides total rounds executed by the tool-calling loop",
		RequiredTags: []string{"model"},
	}

	StatsTasksCompleted = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tasks_completed",
		Help:         "stats_tasks_completed provides total tasks completed, by outcome",
		RequiredTags: []string{"status"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"provider", "tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"provider", "tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}

	StatsSessionsOpened = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_sessions_opened",
		Help:         "stats_sessions_opened provides total provider sessions opened",
		RequiredTags: []string{"provider"},
	}

	StatsSessionsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_sessions_failed",
		Help:         "stats_sessions_failed provides total provider sessions failed to open",
		RequiredTags: []string{"provider", "reason"},
	}

	StatsModelCacheHits = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_model_cache_hits",
		Help:         "stats_model_cache_hits provides total model validations served from cache",
		RequiredTags: []string{"backend"},
	}

	StatsModelCacheMisses = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_model_cache_misses",
		Help:         "stats_model_cache_misses provides total model validations that queried the host",
		RequiredTags: []string{"backend"},
	}

	StatsRegistryLoads = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_registry_loads",
		Help:         "stats_registry_loads provides total provider registry loads",
		RequiredTags: []string{"format"},
	}
)

// Perf
var (
	PerfTaskRun = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_task_run",
		Help:         "perf_task_run provides duration of a task run",
		RequiredTags: []string{"mode"},
	}

	PerfModelCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_model_call",
		Help:         "perf_model_call provides duration of a model round-trip",
		RequiredTags: []string{"model"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"provider", "tool"},
	}

	PerfSessionOpen = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_session_open",
		Help:         "perf_session_open provides duration of opening a provider session",
		RequiredTags: []string{"provider"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfModelCall,
	&PerfSessionOpen,
	&PerfTaskRun,
	&PerfToolCall,
	&StatsLLMBytesReceived,
	&StatsLLMBytesSent,
	&StatsLLMEmptyResponses,
	&StatsLLMInputTokens,
	&StatsLLMMessagesSent,
	&StatsLLMOutputTokens,
	&StatsLLMTotalTokens,
	&StatsLoopRounds,
	&StatsModelCacheHits,
	&StatsModelCacheMisses,
	&StatsRegistryLoads,
	&StatsSessionsFailed,
	&StatsSessionsOpened,
	&StatsTasksCompleted,
	&StatsToolCallsFailed,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
}
