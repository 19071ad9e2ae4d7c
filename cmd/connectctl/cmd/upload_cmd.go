package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/lyzr/connected/common/uploader"
)

var (
	uploadVideo      bool
	uploadSession    string
	uploadReceiver   string
	uploadNoCompress bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload file-path",
	Short: "upload a file",
	Long:  `upload a file in chunks (or in one request when small) and publish it as a transfer`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, log := connect(cmd)

		file, err := uploader.ReadFile(args[0])
		if err != nil {
			return err
		}

		opts := uploader.DefaultOptions()
		if uploadVideo {
			opts = uploader.VideoStreamOptions()
		}
		opts.CompressImages = opts.CompressImages && !uploadNoCompress
		opts.SessionKey = uploadSession
		opts.ReceiverID = uploadReceiver

		bar := progressbar.NewOptions(100,
			progressbar.OptionSetDescription(fmt.Sprintf("%s (%s)", file.Name, uploader.FormatSize(file.Size()))),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		opts.OnProgress = func(p uploader.Progress) {
			_ = bar.Set(int(p.Percent))
		}

		job := uploader.NewJob(client, file, opts, log)

		// first interrupt aborts between chunks
		interrupts := make(chan os.Signal, 1)
		signal.Notify(interrupts, os.Interrupt)
		defer signal.Stop(interrupts)
		go func() {
			if _, ok := <-interrupts; ok {
				job.Abort()
			}
		}()

		res, err := job.Run(ctx)
		_ = bar.Finish()
		if err != nil {
			return fmt.Errorf("upload %s failed: %w", job.UploadID(), err)
		}

		mode := fmt.Sprintf("%d chunks", res.TotalChunks)
		if res.Direct {
			mode = "direct"
		}
		fmt.Printf("uploaded %s (%s, %s)\n", res.Finalize.FileName, uploader.FormatSize(res.Finalize.FileSize), mode)
		if res.Compressed {
			fmt.Println("image was compressed before upload")
		}
		fmt.Printf("url:      %s\n", res.Finalize.FileURL)
		if t := res.Finalize.Transfer; t != nil {
			fmt.Printf("transfer: %s (%s)\n", t.ID, t.Kind)
		}
		return nil
	},
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadVideo, "video", false, "use the video streaming path")
	uploadCmd.Flags().StringVar(&uploadSession, "session", "", "publish to a pairing session")
	uploadCmd.Flags().StringVar(&uploadReceiver, "to", "", "receiver user id")
	uploadCmd.Flags().BoolVar(&uploadNoCompress, "no-compress", false, "send images as they are")
}
