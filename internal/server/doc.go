// Package server hosts the Fiber HTTP service that sits between portal pages and
// the portal origin. Runtime wires config into the controller collaborators
// (cache storage, upstream network, client hub, notification center, sync
// scheduler); Gateway hands every in-scope request to the active controller and
// streams the rest straight to the origin. The /-/ surfaces live in routes.
package server
