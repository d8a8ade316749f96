package notify

const defaultTitleTemplate = `Tugtainer: container updates on {{ len .Hosts }} host{{ if ne (len .Hosts) 1 }}s{{ end }}`

const defaultBodyTemplate = `{{- range .Hosts }}
Host: {{ .HostName }}
{{- with itemsFor . "available" }}
Available:
{{- range . }}
  {{ .Name }}  {{ .ImageSpec }}
{{- end }}
{{- end }}
{{- with itemsFor . "updated" }}
Updated:
{{- range . }}
  {{ .Name }}  {{ .ImageSpec }}
{{- end }}
{{- end }}
{{- with itemsFor . "rolled_back" }}
Rolled-back after fail:
{{- range . }}
  {{ .Name }}  {{ .ImageSpec }}
{{- end }}
{{- end }}
{{- with itemsFor . "failed" }}
Failed:
{{- range . }}
  {{ .Name }}  {{ .ImageSpec }}
{{- end }}
{{- end }}
{{- end }}`
