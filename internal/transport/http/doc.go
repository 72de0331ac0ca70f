// Package http implements the HTTP handlers for the EMI dashboard backend.
// It is a thin layer between transport and the service packages: handlers
// parse and validate requests, call a service, and format the response.
//
// # Request Flow
//
// A typical request flows through these layers:
//
//	HTTP Request → Chi Router → Middleware → Handler → Service → RunStore
//	                                              ↓
//	HTTP Response ← Handler ← Service Response ←─┘
//
// # Handler Structure
//
// Each handler follows this pattern:
//
//	func (h *Handler) HandleSomething(w http.ResponseWriter, r *http.Request) {
//	    // 1. Parse and validate request
//	    req, err := h.decodeRequest(r)
//	    if err != nil {
//	        h.errorHandler.HandleError(w, r, err)
//	        return
//	    }
//
//	    // 2. Call service layer
//	    result, err := h.service.DoSomething(r.Context(), req)
//	    if err != nil {
//	        h.errorHandler.HandleError(w, r, mapSentinel(err))
//	        return
//	    }
//
//	    // 3. Format and send response
//	    render.JSON(w, r, formatResponse(result))
//	}
//
// # Error Handling
//
// Service sentinels map onto status codes before reaching the RFC 7807
// error handler:
//
//	services.ErrNoRunAvailable  → 404 NO_RUN_YET
//	services.ErrNoDataInRange   → 404 NO_DATA_IN_RANGE
//	services.ErrRefreshRunning  → 409 REFRESH_IN_PROGRESS
//	services.ErrFileNotFound    → 404 FILE_NOT_FOUND
//	services.ErrInvalidFileType → 400 INVALID_FILE_TYPE
//
// Every error body is an RFC 7807 problem document:
//
//	{
//	    "type": "/errors/not-found",
//	    "title": "Not Found",
//	    "status": 404,
//	    "detail": "No completed pipeline run is available yet",
//	    "instance": "/api/series"
//	}
//
// # Testing
//
// Handlers are tested with httptest against fake service implementations of
// the *Interface types defined in this package.
package http
