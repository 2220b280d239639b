package research

import "github.com/quill-ai/go-quill/pkg/middleware/prompt"

// Messages returned without calling a model.
const (
	Apology  = "Sorry, something went wrong. Please try asking your question a different way."
	Fallback = "Sorry, I could not put together an answer this time. Please ask again, or make the question more specific."
)

var modePrompt = prompt.Must("mode", `<settings>
    <role>Request Classifier for a Writing Assistant</role>
</settings>

<context>
    <user_setting>{{.UserSetting}}</user_setting>
    <original_content>{{.OriginalContent}}</original_content>
</context>

<instructions>
    Classify the writer's request into exactly one mode:
    - verification: check whether something in the story or setting is factually or historically plausible.
    - research: gather real-world background, references or examples the writer can use.
    - normal: anything that needs no outside information, such as brainstorming, rewriting or feedback.
    Reply with a JSON object {"mode": "...", "reason": "..."} and nothing else.
</instructions>

<request>{{.UserInput}}</request>`)

var decomposePrompt = prompt.Must("decompose", `<settings>
    <role>Research Planner for Writers</role>
</settings>

<context>
    <user_setting>{{.UserSetting}}</user_setting>
    <original_content_summary>{{.OriginalContent}}</original_content_summary>
</context>

<instructions>
    Break the request into at most {{.MaxSteps}} concrete research questions, in the order they should be answered.
    Each question must be answerable by a web search on its own.
    Reply with a JSON array of strings and nothing else.
</instructions>

<request>{{.UserInput}}</request>`)

var queryPrompt = prompt.Must("query", `<settings>
    <role>Search Query Writer</role>
</settings>

<context>
    <user_setting>{{.UserSetting}}</user_setting>
    <original_content_summary>{{.OriginalContent}}</original_content_summary>
    <request>{{.UserInput}}</request>
    <plan>{{range $i, $s := .Steps}}
        <step index="{{$i}}">{{$s}}</step>{{end}}
    </plan>
    <previous_results_summary>{{.PreviousResults}}</previous_results_summary>
</context>

<instructions>
    Write one search query for the current step. Favour keywords that surface objective, factual sources.
    Reply with the query only.
</instructions>

<current_step>{{.CurrentStep}}</current_step>`)

var searchPrompt = prompt.Must("search", `<settings>
    <role>Research Assistant for Writers</role>
</settings>

<instructions>
    Give accurate, fact-based information with concrete examples and the historical or cultural context a novelist would need.
    Structure the answer as a short summary, then details and examples, then background.
</instructions>

<writer_request>{{.UserInput}}</writer_request>

<query>{{.Query}}</query>`)

var normalPrompt = prompt.Must("normal", `<settings>
    <role>Writing Assistant</role>
</settings>

<context>
    <user_setting>{{.UserSetting}}</user_setting>
    <original_content_summary>{{.OriginalContent}}</original_content_summary>
</context>

<instructions>
    Answer the writer directly and helpfully, staying consistent with the setting and manuscript.
</instructions>

<request>{{.UserInput}}</request>`)

var synthesisPrompt = prompt.Must("synthesis", `<settings>
    <role>Research Editor for Writers</role>
    <mode>{{.Mode}}</mode>
</settings>

<context>
    <user_setting>{{.UserSetting}}</user_setting>
    <original_content_summary>{{.OriginalContent}}</original_content_summary>
</context>

<findings>
{{.Findings}}
</findings>

<instructions>
    {{if eq .Mode "verification"}}Judge whether the request holds up against the findings, say what is accurate and what is not, and suggest corrections that fit the story.{{else}}Combine the findings into one answer the writer can use directly, with concrete details and ideas for the story.{{end}}
    Do not mention the research process or any internal errors.
</instructions>

<request>{{.UserInput}}</request>`)
