package middleware

import (
	"webcarros/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TraceHeader carries the trace id back to the browser.
const TraceHeader = "X-Trace-ID"

// TracingMiddleware opens one server span per request. The span is renamed
// to the matched route once routing is done, so /car/:id groups every listing.
func TracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		parent := otel.GetTextMapPropagator().Extract(c.UserContext(), propagation.HeaderCarrier(c.GetReqHeaders()))
		ctx, span := observability.Tracer.Start(parent, c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(requestAttributes(c)...),
		)
		defer span.End()

		sc := span.SpanContext()
		c.Locals("traceID", sc.TraceID().String())
		c.Locals("spanID", sc.SpanID().String())
		c.Set(TraceHeader, sc.TraceID().String())
		c.SetUserContext(ctx)

		err := c.Next()

		// Unmatched requests end on a "/" middleware route.
		if route := c.Route().Path; route != "/" || c.Path() == "/" {
			span.SetName(c.Method() + " " + route)
			span.SetAttributes(attribute.String("http.route", route))
		}
		span.SetAttributes(attribute.Int("http.status_code", c.Response().StatusCode()))
		span.SetAttributes(localAttributes(c)...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
}

func requestAttributes(c *fiber.Ctx) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", c.Method()),
		attribute.String("http.target", c.OriginalURL()),
		attribute.String("http.client_ip", c.IP()),
		attribute.String("http.user_agent", c.Get(fiber.HeaderUserAgent)),
	}
	if id, ok := c.Locals("requestid").(string); ok && id != "" {
		attrs = append(attrs, attribute.String("request.id", id))
	}
	return attrs
}

// localAttributes reads the ids set by ClientSession and the identity guards.
func localAttributes(c *fiber.Ctx) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for local, key := range map[string]string{
		"clientID": "client.id",
		"userID":   "user.id",
	} {
		if v, ok := c.Locals(local).(string); ok && v != "" {
			attrs = append(attrs, attribute.String(key, v))
		}
	}
	return attrs
}
