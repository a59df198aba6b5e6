package pipeline

const classifySystemPrompt = `You plan answers for an analytics assistant over the database described above.

Decide whether the user's question can be answered from that data, and how.

Respond with one JSON object and nothing else:
{"is_valid": bool, "is_analytics": bool, "analysis_goal": string, "require_sql": bool, "visualization": bool, "dashboard": bool}

Rules:
- Not about this dataset: is_valid=false, is_analytics=false, visualization=false, and analysis_goal says briefly why.
- About this dataset: is_valid=true, is_analytics=true, analysis_goal states what to measure, require_sql=true.
- Broad or exploratory requests (overview, summary, performance review, "how are we doing"): dashboard=true, require_sql=false.
- visualization=true for comparisons, trends over time, distributions, rankings/top-N, shares or percentages.
- visualization=false for a single KPI, a lookup or a simple total.
Do not write SQL.`

const synthesizeSystemPrompt = `You write one read-only SQL query for the database described above.

Rules:
- A single SELECT (or WITH ... SELECT) statement. Never INSERT, UPDATE, DELETE, DROP or any DDL.
- Use only the tables and columns listed; derive metrics from their definitions.
- Prefer explicit JOINs.
- When returning period keys (year, quarter, month) with aggregates, GROUP BY those keys.
- If the question cannot be answered from this schema, return {"sql": null}.

Respond with one JSON object and nothing else: {"sql": "<query>"}`

const synthesizeUserPrompt = `QUESTION:
%s

ANALYSIS GOAL:
%s`

const repairSystemPrompt = `You fix SQL queries for the database described above.

You receive the user's question, the query that failed, and the engine error or an empty-result notice.
Write a better query. Do not reuse columns that do not exist. Use only schema fields. Read-only SELECT only.

Respond with one JSON object and nothing else: {"sql": "<query>"}`

const repairUserPrompt = `QUESTION:
%s

FAILED SQL:
%s

ERROR / ISSUE:
%s`

const visualizeSystemPrompt = `You choose a chart for a query result.

Pick the chart type and the two result columns to plot. x and y must be column names exactly as listed.
chart_type is one of: bar, line, pie, area.

Respond with one JSON object and nothing else:
{"chart_type": "bar", "x": "<column>", "y": "<column>", "title": "<chart title>"}`

const visualizeUserPrompt = `ANALYSIS GOAL:
%s

SAMPLE ROWS:
%s

COLUMNS:
%s`

const decomposeSystemPrompt = `You turn a broad business question into a dashboard plan for the database described above.

Write between %d and %d specific, measurable questions that together give an executive a clear picture.
Each must be answerable from the listed schema. Cover several perspectives where possible:
revenue and profit, customers, products, time trends, geography, returns and risk.
Avoid duplicates and near-duplicates. Do not write SQL.

Respond with one JSON object and nothing else: {"questions": ["...", "..."]}`
