// Package mailrule evaluates declarative policy conditions against a
// per-transaction mail envelope.
//
// Rules are authored as data (field, operator, operand, nested
// combinators) rather than as code. The engine compiles them once and
// evaluates them for every transaction:
//
//  1. Build an Envelope describing the transaction (sender, recipient,
//     addresses, listener, priority, ...)
//  2. Create the conditions, evals and maybe-evals, or load them from a
//     declarative document with the conf package
//  3. Create an engine, registering the directories the definitions
//     reference
//  4. Use the engine to compile the definitions
//  5. Evaluate them against the envelope and act on the results
//
// Three kinds of definitions exist. A Rule is a named condition tree and
// evaluates to a boolean. An Eval is an ordered list of (condition,
// template) clauses: the first matching clause renders its template,
// using the capture groups of the regex that decided the match, and
// scanning stops. A MaybeEval additionally resolves the rendered value
// through a Directory, accepting it only if the directory knows the key.
//
// # Compilation and Errors
//
// Everything that can be wrong with a definition (a malformed regular
// expression, an operand that is not a network, a reference to an
// unknown directory or an impossible capture group) is reported when
// the definition is compiled. Evaluation itself only fails when a
// directory backend fails; a condition that simply does not hold is an
// ordinary false result.
//
// # Ownership and Concurrency
//
// The calling application owns the definitions. Do not modify a
// definition after it has been compiled; compiled definitions and
// envelopes are read-only during evaluation, so any number of
// evaluations may run concurrently. To replace a running configuration,
// build and compile a new RuleSet and publish it through a Store: the
// swap is atomic and in-flight evaluations keep the snapshot they
// started with.
package mailrule
