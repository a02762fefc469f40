package api

import (
	"mailbridge/composer"
	"mailbridge/providers"
	"mailbridge/storage"
	"mailbridge/syncer"
	"mailbridge/utils"
)

// Handler carries the service dependencies shared by every route.
type Handler struct {
	store   *storage.Store
	media   *storage.MediaStore
	clients providers.ClientFactory
	sync    *syncer.Service
	compose *composer.Composer
	hub     *Hub
	drafts  *utils.MemoryCache
	log     *utils.Logger
}

func NewHandler(store *storage.Store, media *storage.MediaStore, clients providers.ClientFactory, sync *syncer.Service, compose *composer.Composer, hub *Hub) *Handler {
	return &Handler{
		store:   store,
		media:   media,
		clients: clients,
		sync:    sync,
		compose: compose,
		hub:     hub,
		drafts:  utils.NewMemoryCache(),
		log:     utils.Log,
	}
}
