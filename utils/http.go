package utils

import (
	"github.com/valyala/fasthttp"
)

func noStore(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	ctx.Response.Header.Set("Pragma", "no-cache")
	ctx.Response.Header.Set("Expires", "0")

	if requestID := string(ctx.Request.Header.Peek("X-Request-ID")); requestID != "" {
		ctx.Response.Header.Set("X-Request-ID", requestID)
	}
}

func CreateErrorResponse(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	ctx.SetContentType("application/json")
	noStore(ctx)
	ctx.SetBodyString(`{"error":"Internal Server Error","message":"An unexpected error occurred"}`)
}

func CreateNotFoundResponse(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusNotFound)
	ctx.SetContentType("application/json")
	noStore(ctx)
	ctx.SetBodyString(`{"error":"Not Found","message":"Document does not exist"}`)
}

func CreateBadRequestResponse(ctx *fasthttp.RequestCtx, message string) {
	ctx.SetStatusCode(fasthttp.StatusBadRequest)
	ctx.SetContentType("application/json")
	noStore(ctx)

	body, err := Marshal(map[string]string{
		"error":   "Bad Request",
		"message": message,
	})
	if err != nil {
		CreateErrorResponse(ctx)
		return
	}
	ctx.SetBody(body)
}

func WriteJSON(ctx *fasthttp.RequestCtx, status int, payload interface{}) {
	body, err := Marshal(payload)
	if err != nil {
		CreateErrorResponse(ctx)
		return
	}

	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
