// ABOUTME: Run-lifecycle hooks for agent frameworks without a native adapter.
// ABOUTME: Builds conversation records from start/end/tool/handoff events.

// Package agenthooks instruments agent frameworks that expose run
// lifecycle callbacks, in the shape popularized by the OpenAI Agents
// SDK: agent start and end, LLM calls, tool calls, and handoffs between
// agents.
//
// Hooks owns one accumulator per run. A run opens on the first
// OnAgentStart, survives handoffs to other agents, and closes on
// OnAgentEnd, when the finished record is queued for upload. All entry
// points are fail-soft: a misbehaving callback never breaks the host
// agent.
package agenthooks
