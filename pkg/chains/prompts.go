package chains

import "github.com/quill-ai/go-quill/pkg/middleware/prompt"

var chatPrompt = prompt.Must("chat", `You are a helpful and friendly assistant to a novelist.
Give the most useful answer you can to the writer's question or request.

<user_setting>
{{.UserSetting}}
</user_setting>

<selected_passage>
{{.Query}}
</selected_passage>

Rules:
1. Understand the request and give accurate information.
2. If you cannot answer, say so honestly and politely.
3. Stay polite and professional.
4. Ask a follow-up question when the request is unclear.
5. Be specific and useful.
6. If the selected passage is relevant, use it in your answer.
{{if .History}}
Conversation so far:
{{.History}}
{{end}}
Human: {{.Input}}
AI:`)

var plannerPrompt = prompt.Must("planner", `<settings>
    <role>Creative Writing Assistant</role>
    <output_format>text</output_format>
</settings>

<context>
    <genre>{{.Genre}}</genre>
    <logline>{{.Logline}}</logline>
    <target_section>{{.Section}}</target_section>
</context>

<sections>
{{- range .Groups}}
    <{{.Name}}>
{{- range .Sections}}
        <section>{{.}}</section>
{{- end}}
    </{{.Name}}>
{{- end}}
</sections>

<instructions>
    <task>
        <primary>Write detailed material for planning a novel</primary>
        <user_prompt>{{.Input}}</user_prompt>
        <requirements>
            <item>Keep the tone and mood of the genre and logline</item>
            <item>Be concrete and detailed</item>
            <item>Be creative but consistent</item>
            <item>Follow the user prompt as closely as possible</item>
            <item>Do not include XML tags in the output</item>
        </requirements>
    </task>
</instructions>

<examples>
    <example>
        <input>
            <genre>SF, romance</genre>
            <logline>In 2088 the companion robot If, owned by her human husband, meets a barista named Grey who keeps calling her Caitlin.</logline>
            <target_section>geography</target_section>
        </input>
        <output>
            1. Pollution and climate change have left the air toxic and nature almost gone.
            2. The rich live in vast domed cities called Arks while everyone else survives in the ruined outskirts.
            3. Rising seas drowned the old coasts and new megacities grew inland.
        </output>
    </example>
</examples>

Write the {{.Section}} section for: {{.Input}}`)

var feedbackPrompt = prompt.Must("feedback", `<instruction>
    <instructions>
        1. Read the user-input carefully. Your first job is to check that it is consistent with the contexts: the literature-setting (world, characters, custom fields, relationships, period) and the part-of-the-work. Look for logical contradictions, anachronisms and broken world rules.
        2. Fix any inconsistency with the setting before touching grammar or style.
        3. Then find awkward phrasing, grammar mistakes and weak sentence endings.
        4. Keep the tone, mood and context of the original.
        5. Do not soften violence or sensuality.
        6. Do not include XML tags in the output.
        7. Output only the revised text followed by the reasons for each change.
    </instructions>
    <contexts>
        <context>
            <literature-setting>
{{.UserSetting}}
            </literature-setting>
        </context>
        <context>
            <part-of-the-work>
{{.Context}}
            </part-of-the-work>
        </context>
    </contexts>
    <examples>
        <example>
            <input>He ran very fast, so he won the race.</input>
            <output>
                <result>He ran fast enough to win the race.</result>
                <reasons>
                    <reason>Joined the clauses so the sentence flows.</reason>
                    <reason>Removed the repeated subject.</reason>
                </reasons>
            </output>
        </example>
    </examples>
</instruction>

<user-input>{{.Input}}</user-input>`)

var userModifyPrompt = prompt.Must("user_modify", `<instruction>
    <instructions>
        1. Read the user-input and rewrite it the way the user_prompt asks.
        2. Use the contexts to keep style and mood consistent.
        3. The rewrite must fit its surroundings and read naturally.
        4. Do not include XML tags in the output.
        5. Output only the rewritten user-input.
    </instructions>
    <contexts>
        <context>
            <literature-setting>
{{.UserSetting}}
            </literature-setting>
        </context>
        <context>
            <part-of-the-work>
{{.Context}}
            </part-of-the-work>
        </context>
    </contexts>
</instruction>

<user-input>{{.Input}}</user-input>
<user_prompt>{{.HowPolish}}</user_prompt>`)

var autoModifyPrompt = prompt.Must("auto_modify", `<instruction>
    <instructions>
        1. Read and analyse the user-input.
        2. The literature-setting is the source of truth. Wherever the user-input contradicts it, change the user-input to match. A character who is deaf cannot hear footsteps; they feel someone approach.
        3. Use the literature-setting and the part-of-the-work so the result fits the tone, mood and context of the scene.
        4. Even without a contradiction, weave the characters' traits, world rules and coined terms from the literature-setting into the text to make it richer.
        5. Keep the result concise and accurate.
        6. Do not soften violence or sensuality.
        7. Do not include XML tags in the output.
        8. Output only the final revised text with no explanation.
    </instructions>
    <contexts>
        <context>
            <literature-setting>
{{.UserSetting}}
            </literature-setting>
        </context>
        <context>
            <part-of-the-work>
{{.Context}}
            </part-of-the-work>
        </context>
    </contexts>
    <examples>
        <example>
            <input>It was raining. So we took an umbrella.</input>
            <output>It was raining, so we grabbed an umbrella.</output>
        </example>
    </examples>
</instruction>

<user-input>{{.Input}}</user-input>`)
