package models

const (
	MetricsKey         = "ESG Metrics"
	BreakdownKey       = "Key Metrics Breakdown"
	NotMentioned       = "not mentioned"
	NoDataMarker       = "[No data available]"
	SummaryFallback    = "Summary not available."
	ThinkTag           = `(?s)<think>.*?</think>`
	FragmentSplitRegex = `[\n•-]+`
	InlineJSONFence    = "(?s)```json\\s*(\\{.*?\\})\\s*```"
	DefaultChunkSize   = 100000
	ExtractMaxTokens   = 2000
	SummaryMaxTokens   = 1200
	BreakdownMaxTokens = 1500
	DefaultTemperature = 0.2
)

// MetricsJSONFormat is the schema the extraction prompt asks the model to return.
const MetricsJSONFormat = "```json\n" + `{
  "ESG Metrics": {
    "Environmental": {
      "Carbon Emissions": "...",
      "Energy Use": "...",
      "Water Usage": "...",
      "Waste Management": "...",
      "Climate Risk Disclosures": "..."
    },
    "Social": {
      "Labour Practices": "...",
      "Diversity & Inclusion": "...",
      "Community Impact": "...",
      "Product/Service Responsibility": "...",
      "Human Rights": "..."
    },
    "Governance": {
      "Board Composition": "...",
      "Executive Compensation": "...",
      "Transparency": "...",
      "Regulatory Compliance": "...",
      "Ethical Practices": "...",
      "Governance Risk": "..."
    }
  }
}` + "\n```"

var (
	// ExtractPromptTemplate takes the JSON format and the chunk text.
	ExtractPromptTemplate = `
You are an expert ESG analyst with exceptional ability to extract key ESG performance metrics from corporate reports. Analyze the following text and extract all available explicit data, including both quantitative figures (numbers, percentages, targets) and key qualitative statements, that indicate performance for ESG scoring.

For each category below, if quantitative data is available, include it. Otherwise, include qualitative details. Do not simply return "Not mentioned". Always provide some detail.

**Environmental:**
- Carbon Emissions: Data or qualitative insights.
- Energy Use: Renewable vs. fossil details or performance descriptions.
- Water Usage: Consumption, efficiency measures or insights.
- Waste Management: Recycling or waste reduction details.
- Climate Risk Disclosures: Numerical data or descriptive risk disclosures.

**Social:**
- Labour Practices: Safety, turnover, wages, or workplace practices.
- Diversity & Inclusion: Workforce or board diversity data.
- Community Impact: Investment figures or qualitative assessments.
- Product/Service Responsibility: Quality or safety metrics.
- Human Rights: Numerical or qualitative compliance details.

**Governance:**
- Board Composition: Data on independence, diversity or expertise.
- Executive Compensation: Metrics linking pay to performance.
- Transparency: Disclosure quality or reporting standards.
- Regulatory Compliance: Data on compliance measures.
- Ethical Practices: Anti-corruption or whistleblower metrics.
- Governance Risk: Indicators of risk or qualitative assessments.

Return your answer in JSON format exactly as follows:
%s

**Text to analyze:**
%s
`

	// SummaryPromptTemplate takes the pillar name twice and the metrics context.
	SummaryPromptTemplate = `
You are an expert ESG analyst. Based solely on the aggregated ESG metrics below for the %s pillar, generate a thorough summary analysis in at least 5 to 7 detailed sentences. Your analysis should explain what the data shows, why it matters, discuss potential implications for the company's ESG performance, and highlight any data gaps.

Aggregated Metrics:
For the %s pillar, use the following aggregated metrics as context:
%s
Provide only the summary text.
`

	// BreakdownPromptTemplate takes the pillar name twice and the metrics context.
	BreakdownPromptTemplate = `
You are an expert ESG analyst. Based solely on the aggregated ESG metrics below for the %s pillar, provide a detailed breakdown analysis for each key metric. Explain what the data indicates, why it is important for assessing ESG performance, and how it could be used to determine a quantitative score for the pillar. Return your response strictly in JSON format, wrapped in a ` + "```json" + ` code block, with the following structure:

{
  "Key Metrics Breakdown": {
    "Category1": "Detailed analysis",
    "Category2": "Detailed analysis",
    ...
  }
}

Aggregated Metrics:
For the %s pillar, analyze the following key metrics and provide a detailed breakdown for each metric. For each category, describe the available quantitative and qualitative data, discuss its implications, and suggest how it might be used to score the pillar in future analyses.
%s
Provide only the JSON output.
`
)

// AskPromptTemplate takes the company, the evidence lines and the question.
const AskPromptTemplate = `
You are an expert ESG analyst answering questions about %s. Use only the evidence below, extracted from the company's own reports. If the evidence does not answer the question, say so.

Evidence:
%s
Question: %s
`
