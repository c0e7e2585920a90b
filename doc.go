// Package grove provides a token-based dependency injection container for Go.
//
// Providers are registered under tokens and declare their dependencies
// explicitly. Call [Container.Build] to validate the dependency graph, then
// retrieve fully-assembled objects with [Container.Resolve] or the generic
// [ResolveToken] and [Resolve] helpers.
//
// # Quick Start
//
//	var (
//		DSN  = grove.NewSymbol("DSN")
//		Repo = grove.NewSymbol("Repo")
//	)
//
//	c := grove.New()
//	c.Register(
//		grove.Value(DSN, "postgres://localhost"),
//		grove.Factory(Repo, NewRepo, grove.Inject(DSN)),
//	)
//	c.Build(ctx)
//
//	repo, err := grove.ResolveToken[*Repo](ctx, c, Repo)
//
// # Optional Dependencies
//
// A dependency declared with [InjectOptional] never fails resolution because
// it is missing. The factory receives [Absent] in its place (or an empty
// [Optional] wrapper, or the zero value, depending on the parameter type):
//
//	grove.Factory(Mailer, func(smtp any, tpl grove.Optional[*Templates]) *Mailer {
//		...
//	}, grove.InjectOptional(SMTP), grove.InjectOptional(grove.TypeOf[*Templates]()))
//
// # Lifetimes
//
// [Singleton] (default): one shared instance for the lifetime of the
// container.
//
// [Transient]: a fresh instance on every resolution.
//
// [Request]: one instance per [RequestContext]. Open one per inbound request
// with [Container.NewRequestContext], thread it through [WithRequestContext]
// and close it when the request is done:
//
//	rc := c.NewRequestContext("")
//	defer rc.Close(ctx)
//
//	svc, err := grove.ResolveToken[*Service](grove.WithRequestContext(ctx, rc), c, ServiceToken)
//
// Resolving a request-scoped provider without a request context gives it a
// private context that lives for that single call.
//
// # Type Tokens
//
// [Constructor] keys a provider by the type it returns and infers its
// dependencies from its parameter types:
//
//	c.Register(grove.Constructor(NewLogger))
//	c.Register(grove.Constructor(NewDatabase))
//
//	db, err := grove.Resolve[*Database](ctx, c)
package grove
