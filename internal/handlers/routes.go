package handlers

import "net/http"

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users         UserStore
	Sessions      SessionManager
	Relationships RelationshipService
	Feeds         FeedService
	Posts         PostStore
	Images        ImageIngestor
	Avatars       AvatarStorage
	AuthLimiter   RateLimiter
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux. The protect
// middleware is applied to every route that requires an authenticated caller.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies, protect func(http.Handler) http.Handler) {
	if protect == nil {
		protect = func(next http.Handler) http.Handler { return next }
	}

	health := HealthHandler{}
	authh := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Limiter: deps.AuthLimiter}
	users := UserHandler{Users: deps.Users, Avatars: deps.Avatars}
	friends := FriendHandler{Relationships: deps.Relationships}
	posts := PostHandler{Posts: deps.Posts, Images: deps.Images}
	feed := FeedHandler{Feeds: deps.Feeds}

	mux.HandleFunc("GET /healthz", health.Handle)

	mux.HandleFunc("POST /api/v1/auth/register", authh.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authh.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", authh.Refresh)

	mux.Handle("GET /api/v1/users/{id}", protect(http.HandlerFunc(users.Get)))
	mux.Handle("PUT /api/v1/users/{id}", protect(http.HandlerFunc(users.Update)))
	mux.Handle("PUT /api/v1/users/{id}/password", protect(http.HandlerFunc(users.UpdatePassword)))
	mux.Handle("DELETE /api/v1/users/{id}", protect(http.HandlerFunc(users.Delete)))

	mux.Handle("POST /api/v1/users/{id}/friend-request", protect(http.HandlerFunc(friends.Send)))
	mux.Handle("POST /api/v1/users/{id}/friend-request/accept", protect(http.HandlerFunc(friends.Accept)))
	mux.Handle("GET /api/v1/friend-requests", protect(http.HandlerFunc(friends.ListPending)))

	mux.Handle("POST /api/v1/posts", protect(http.HandlerFunc(posts.Create)))
	mux.Handle("GET /api/v1/posts/{id}", protect(http.HandlerFunc(posts.Get)))
	mux.Handle("PUT /api/v1/posts/{id}", protect(http.HandlerFunc(posts.Update)))
	mux.Handle("DELETE /api/v1/posts/{id}", protect(http.HandlerFunc(posts.Delete)))
	mux.Handle("POST /api/v1/posts/{id}/comments", protect(http.HandlerFunc(posts.Comment)))
	mux.Handle("POST /api/v1/posts/{id}/likes", protect(http.HandlerFunc(posts.Like)))
	mux.Handle("DELETE /api/v1/posts/{id}/likes", protect(http.HandlerFunc(posts.Unlike)))

	mux.Handle("GET /api/v1/feed/timeline", protect(http.HandlerFunc(feed.Timeline)))
	mux.Handle("GET /api/v1/feed/discovery", protect(http.HandlerFunc(feed.Discovery)))
}
