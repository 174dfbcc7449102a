// Package expression binds and validates workflow expressions.
//
// Expressions appear in two shapes: string templates with ${path}
// placeholders, such as "Hello ${payload.customer.name}", and wrapped
// expressions {"$expr": "..."} used for conditions, loop items and
// mappings. A path is a dotted identifier chain whose first segment is a
// root namespace:
//
//	payload   fields of the workflow payload schema
//	vars      outputs of earlier steps, by saveAs name
//	meta      run metadata (state, traceId, tags)
//	env       runtime environment (tenantId, workflowId, ...)
//	secrets   tenant secrets
//	error     the caught error, inside catch branches
//
// Loop item and index variables and a catch block's captured error name are
// also valid roots where they are in scope.
//
// Placeholders whose body is not a plain path, such as ${a > b}, are not
// bound here. Wrapped expression bodies are compiled with expr-lang/expr to
// catch syntax errors early.
package expression
