package renderer

import "html/template"

const pageStyle = `
    body {
        font-family: system-ui, -apple-system, sans-serif;
        margin: 0;
        padding: 40px 20px;
        background: #fafafa;
        color: #111;
    }
    .container {
        max-width: 640px;
        margin: 0 auto;
        background: white;
        padding: 32px;
        border-radius: 8px;
        box-shadow: 0 2px 10px rgba(0,0,0,0.06);
    }
    h1 { font-size: 20px; margin: 0 0 8px; }
    p { color: #666; margin: 4px 0; }
    code { background: #f0f0f0; padding: 2px 6px; border-radius: 4px; font-size: 13px; }
    ul { list-style: none; padding: 0; }
    li { padding: 6px 0; border-bottom: 1px solid #eee; }
    a { color: #0070f3; text-decoration: none; }
`

var notFoundTmpl = template.Must(template.New("404").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>404 — Not Found</title>
    <style>` + pageStyle + `</style>
</head>
<body>
    <div class="container">
        <h1>404 — The page could not be found</h1>
        <p><code>{{.Code}}</code></p>
        <p>{{.Message}}</p>
        <p><code>{{.RequestID}}</code></p>
    </div>
</body>
</html>
`))

var badGatewayTmpl = template.Must(template.New("502").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>502 — Bad Gateway</title>
    <style>` + pageStyle + `</style>
</head>
<body>
    <div class="container">
        <h1>502 — An error occurred with your deployment</h1>
        <p><code>{{.Code}}</code></p>
        <p>{{.Message}}</p>
        <p><code>{{.RequestID}}</code></p>
    </div>
</body>
</html>
`))

var genericErrorTmpl = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Status}} — Error</title>
    <style>` + pageStyle + `</style>
</head>
<body>
    <div class="container">
        <h1>{{.Status}} — An error occurred</h1>
        <p><code>{{.Code}}</code></p>
        <p>{{.Message}}</p>
        <p><code>{{.RequestID}}</code></p>
    </div>
</body>
</html>
`))

var redirectTmpl = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Redirecting</title>
    <meta http-equiv="refresh" content="0;url={{.Location}}">
    <style>` + pageStyle + `</style>
</head>
<body>
    <div class="container">
        <h1>Redirecting ({{.Status}})</h1>
        <p>Taking you to <a href="{{.Location}}">{{.Location}}</a></p>
    </div>
</body>
</html>
`))

var listingTmpl = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Index of {{.Dir}}</title>
    <style>` + pageStyle + `</style>
</head>
<body>
    <div class="container">
        <h1>Index of {{.Dir}}</h1>
        <ul>
        {{range .Entries}}<li><a href="{{.Path}}">{{.Name}}</a></li>
        {{end}}</ul>
    </div>
</body>
</html>
`))
